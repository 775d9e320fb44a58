package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

/**
 *	HTTP请求选项
 */
type HTTPOptions struct {
	Client     *http.Client  //为空时使用http.DefaultClient
	Timeout    time.Duration //单次请求超时
	Retries    int           //尝试次数(>=1)
	RetryDelay time.Duration //两次尝试之间的间隔
	UserAgent  string
}

// ErrHTTPStatus is returned for non-200 responses.
var ErrHTTPStatus = errors.New("unexpected http status")

func (o HTTPOptions) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return http.DefaultClient
}

func (o HTTPOptions) attempts() int {
	if o.Retries < 1 {
		return 1
	}
	return o.Retries
}

/**
 *	Run fn up to opts.Retries times, waiting RetryDelay*attempt between failures
 */
func WithRetry(ctx context.Context, opts HTTPOptions, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= opts.attempts(); attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == opts.attempts() {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.RetryDelay * time.Duration(attempt)):
		}
	}
	return lastErr
}

func (o HTTPOptions) newRequest(ctx context.Context, urlStr string) (*http.Request, context.CancelFunc, error) {
	cancel := context.CancelFunc(func() {})
	if o.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	if o.UserAgent != "" {
		req.Header.Set("User-Agent", o.UserAgent)
	}
	return req, cancel, nil
}

/**
 *	从远端获取一个文件的内容
 */
func GetBytes(ctx context.Context, urlStr string, opts HTTPOptions) ([]byte, error) {
	var data []byte
	err := WithRetry(ctx, opts, func(ctx context.Context) error {
		req, cancel, err := opts.newRequest(ctx, urlStr)
		if err != nil {
			return fmt.Errorf("GetBytes('%s'): %w", urlStr, err)
		}
		defer cancel()

		rsp, err := opts.client().Do(req)
		if err != nil {
			return fmt.Errorf("GetBytes('%s'): %w", urlStr, err)
		}
		defer rsp.Body.Close()
		if rsp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(rsp.Body, 512))
			return fmt.Errorf("GetBytes('%s') code: %d, error: %s: %w", urlStr, rsp.StatusCode, string(body), ErrHTTPStatus)
		}
		data, err = io.ReadAll(rsp.Body)
		if err != nil {
			return fmt.Errorf("GetBytes('%s'): read body: %w", urlStr, err)
		}
		return nil
	})
	return data, err
}

/**
 *	从服务器下载一个文件到savePath, 先写临时文件再改名
 */
func GetFile(ctx context.Context, fs afero.Fs, urlStr string, savePath string, opts HTTPOptions) error {
	if err := fs.MkdirAll(filepath.Dir(savePath), 0755); err != nil {
		return fmt.Errorf("GetFile('%s'): MkdirAll('%s') error: %w", urlStr, savePath, err)
	}
	return WithRetry(ctx, opts, func(ctx context.Context) error {
		req, cancel, err := opts.newRequest(ctx, urlStr)
		if err != nil {
			return fmt.Errorf("GetFile('%s') failed: %w", urlStr, err)
		}
		defer cancel()

		rsp, err := opts.client().Do(req)
		if err != nil {
			return fmt.Errorf("GetFile('%s') failed: %w", urlStr, err)
		}
		defer rsp.Body.Close()
		if rsp.StatusCode != http.StatusOK {
			return fmt.Errorf("GetFile('%s') code: %d: %w", urlStr, rsp.StatusCode, ErrHTTPStatus)
		}

		tmp := savePath + ".part"
		out, err := fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("GetFile('%s'): create('%s') error: %w", urlStr, tmp, err)
		}
		// 然后将响应流和文件流对接起来
		_, copyErr := io.Copy(out, rsp.Body)
		closeErr := out.Close()
		if copyErr != nil {
			_ = fs.Remove(tmp)
			return fmt.Errorf("GetFile('%s'): copy error: %w", urlStr, copyErr)
		}
		if closeErr != nil {
			_ = fs.Remove(tmp)
			return closeErr
		}
		return fs.Rename(tmp, savePath)
	})
}
