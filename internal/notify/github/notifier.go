// Package github is the optional notifier that posts workflow-lifecycle
// updates (approval requested, workflow completed) as issue comments.
// It follows the narrow-interface Real/Mock client split and the
// oauth2.StaticTokenSource wiring of
// ferg-cod3s-conexus/internal/connectors/github's Connector.
package github

import (
	"context"
	"fmt"

	backoffv5 "github.com/cenkalti/backoff/v5"
	"github.com/google/go-github/v45/github"
	"golang.org/x/oauth2"

	"github.com/nexus-forge/workflowcore/internal/retry"
)

// IssueCommenter is the narrow surface the notifier needs from a GitHub
// client — small enough to mock in tests without pulling in the full SDK.
type IssueCommenter interface {
	CreateComment(ctx context.Context, owner, repo string, number int, comment *github.IssueComment) (*github.IssueComment, *github.Response, error)
}

// RealClient wraps go-github's Issues service.
type RealClient struct {
	client *github.Client
}

// NewRealClient builds a RealClient authenticated with a static OAuth2
// personal access token.
func NewRealClient(token string) *RealClient {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	return &RealClient{client: github.NewClient(tc)}
}

func (r *RealClient) CreateComment(ctx context.Context, owner, repo string, number int, comment *github.IssueComment) (*github.IssueComment, *github.Response, error) {
	return r.client.Issues.CreateComment(ctx, owner, repo, number, comment)
}

// MockClient implements IssueCommenter for tests.
type MockClient struct {
	CreateCommentFunc func(ctx context.Context, owner, repo string, number int, comment *github.IssueComment) (*github.IssueComment, *github.Response, error)
	Calls             []string
}

func (m *MockClient) CreateComment(ctx context.Context, owner, repo string, number int, comment *github.IssueComment) (*github.IssueComment, *github.Response, error) {
	m.Calls = append(m.Calls, fmt.Sprintf("%s/%s#%d", owner, repo, number))
	if m.CreateCommentFunc != nil {
		return m.CreateCommentFunc(ctx, owner, repo, number, comment)
	}
	return &github.IssueComment{}, &github.Response{}, nil
}

// postMaxTries caps the number of attempts (including the first) post()
// makes against a rate-limited or transiently failing GitHub API.
const postMaxTries = 4

// postBaseDelaySeconds seeds the exponential curve post() retries on.
const postBaseDelaySeconds = 1.0

// Notifier posts workflow lifecycle updates to a GitHub repository's
// issues as comments.
type Notifier struct {
	client IssueCommenter
	owner  string
	repo   string
}

// New constructs a Notifier bound to a single owner/repo.
func New(client IssueCommenter, owner, repo string) *Notifier {
	return &Notifier{client: client, owner: owner, repo: repo}
}

func (n *Notifier) post(ctx context.Context, issueNumber int, body string) error {
	operation := func() (struct{}, error) {
		_, _, err := n.client.CreateComment(ctx, n.owner, n.repo, issueNumber, &github.IssueComment{Body: &body})
		return struct{}{}, err
	}

	_, err := backoffv5.Retry(ctx, operation,
		backoffv5.WithBackOff(retry.NewBackOff(postBaseDelaySeconds)),
		backoffv5.WithMaxTries(postMaxTries),
	)
	if err != nil {
		return fmt.Errorf("post comment to %s/%s#%d: %w", n.owner, n.repo, issueNumber, err)
	}
	return nil
}

// NotifyApprovalRequired posts a comment asking the listed approvers to
// sign off on a gated step.
func (n *Notifier) NotifyApprovalRequired(ctx context.Context, issueNumber int, stepName string, approvers []string) error {
	body := fmt.Sprintf("⏸️ **Approval required** for step `%s`.\n\nRequested approvers: %v", stepName, approvers)
	return n.post(ctx, issueNumber, body)
}

// NotifyWorkflowCompleted posts a comment announcing a workflow reached
// its terminal COMPLETED state.
func (n *Notifier) NotifyWorkflowCompleted(ctx context.Context, issueNumber int, workflowName string) error {
	body := fmt.Sprintf("✅ Workflow **%s** completed.", workflowName)
	return n.post(ctx, issueNumber, body)
}
