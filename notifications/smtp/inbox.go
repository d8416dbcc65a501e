package smtp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// FindEmail returns the body of the newest message MailHog holds for the
// recipient and empties the inbox. io.EOF means nothing arrived yet. Only
// usable when Config.InboxAPIPort is set.
func (se *Email) FindEmail(ctx context.Context, to string) (string, error) {
	var found struct {
		Items []struct {
			Content struct {
				Body string `json:"Body"`
			} `json:"Content"`
		} `json:"items"`
	}
	query := "/api/v2/search?kind=to&query=" + url.QueryEscape(to)
	if err := se.inbox(ctx, http.MethodGet, query, &found); err != nil {
		return "", err
	}
	if len(found.Items) == 0 {
		return "", io.EOF
	}
	return found.Items[0].Content.Body, se.inbox(ctx, http.MethodDelete, "/api/v1/messages", nil)
}

func (se *Email) inbox(ctx context.Context, method, path string, out any) error {
	endpoint := fmt.Sprintf("http://%s:%d%s", se.config.SMTPServer, se.config.InboxAPIPort, path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("could not create request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not send request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not decode response: %v", err)
	}
	return nil
}
