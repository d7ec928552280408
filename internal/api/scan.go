package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dutchcoders/go-clamd"
)

// ErrMaliciousFile 表示扫描器识别出病毒特征。
var ErrMaliciousFile = errors.New("malicious file detected")

// VirusScanner 在文件写入存储前扫描内容。
type VirusScanner interface {
	Scan(ctx context.Context, r io.Reader) error
}

// NewVirusScanner 返回 clamd 扫描器；addr 为空时不做扫描。
func NewVirusScanner(addr string) VirusScanner {
	if addr == "" {
		return noopScanner{}
	}
	return &clamdScanner{addr: addr}
}

type noopScanner struct{}

func (noopScanner) Scan(context.Context, io.Reader) error { return nil }

type clamdScanner struct {
	addr string
}

func (s *clamdScanner) Scan(ctx context.Context, r io.Reader) error {
	client := clamd.NewClamd(s.addr)

	abortChan := make(chan bool)
	defer close(abortChan)

	scanChan, err := client.ScanStream(r, abortChan)
	if err != nil {
		return fmt.Errorf("clamd scan stream: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result, ok := <-scanChan:
			if !ok {
				return nil
			}
			switch result.Status {
			case clamd.RES_OK:
			case clamd.RES_FOUND:
				return ErrMaliciousFile
			default:
				return fmt.Errorf("clamd status %s: %s", result.Status, result.Description)
			}
		}
	}
}
