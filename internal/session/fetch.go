// Copyright 2025 The Kubepipe Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Fetcher reads the content behind an environment URL.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) ([]byte, error)
}

// ObjectReader opens an object of a bucket.
type ObjectReader func(ctx context.Context, bucket, key string) (io.ReadCloser, error)

// URLFetcher reads file, http, https and, when Objects is set, s3 URLs.
type URLFetcher struct {
	HTTP    *http.Client
	Objects ObjectReader
}

func (f URLFetcher) Fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	switch strings.ToLower(u.Scheme) {
	case "", "file":
		data, err := os.ReadFile(u.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", u, err)
		}
		return data, nil
	case "http", "https":
		return f.fetchHTTP(ctx, u)
	case "s3":
		if f.Objects == nil {
			return nil, fmt.Errorf("cannot read %s: no object store configured", u)
		}
		body, err := f.Objects(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", u, err)
		}
		defer body.Close()
		return io.ReadAll(body)
	default:
		return nil, fmt.Errorf("unsupported url scheme %q in %s", u.Scheme, u)
	}
}

func (f URLFetcher) fetchHTTP(ctx context.Context, u *url.URL) ([]byte, error) {
	client := f.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: %s", u, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// NewObjectReader returns a reader for an S3 compatible endpoint. The
// credentials come from the AWS environment variables.
func NewObjectReader(endpoint string, secure bool) (ObjectReader, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewEnvAWS(),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client for %s: %w", endpoint, err)
	}
	return func(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
		return client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	}, nil
}
