package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Credentials used to connect to a remote provider (basic auth or bearer token)
type Credentials struct {
	User     string
	Password string
	Token    string
}

// HTTPGetWithAuth retrieves the body of the url, retrying nbRetries times in case of temporary errors
func HTTPGetWithAuth(ctx context.Context, url string, creds Credentials, nbRetries int) ([]byte, error) {
	var body []byte
	err := Retriable(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return MakeFatal(fmt.Errorf("HTTPGetWithAuth.NewRequest: %w", err))
		}
		resp, err := doWithAuth(req, creds)
		if err != nil {
			return fmt.Errorf("HTTPGetWithAuth: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			err = ErrHTTPStatus{Code: resp.StatusCode, Body: string(b)}
			if !Temporary(err) {
				return MakeFatal(fmt.Errorf("HTTPGetWithAuth: %w", err))
			}
			return fmt.Errorf("HTTPGetWithAuth: %w", err)
		}
		if body, err = io.ReadAll(resp.Body); err != nil {
			return fmt.Errorf("HTTPGetWithAuth.ReadAll: %w", err)
		}
		return nil
	}, time.Second, nbRetries+1)
	return body, err
}

func doWithAuth(req *http.Request, creds Credentials) (*http.Response, error) {
	if creds.User != "" {
		req.SetBasicAuth(creds.User, creds.Password)
	}
	if creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}
	client := http.Client{}
	return client.Do(req)
}
