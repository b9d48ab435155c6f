package dlst

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// ExtractOptions controls ExtractAll.
type ExtractOptions struct {
	// Jobs is the number of entries decrypted concurrently. Values below 1
	// mean sequential extraction. Per-entry IV chains are independent, so
	// concurrency never changes the decrypted output.
	Jobs int

	// OnEntry, if set, is called once per entry after its file has been
	// written. Calls may arrive from multiple goroutines.
	OnEntry func(e *Entry)
}

// ExtractAll decrypts every entry into dest, creating parent directories
// as needed. Extraction stops at the first error; files already written
// stay in place. Cancelling ctx abandons remaining entries mid-stream.
func (r *Reader) ExtractAll(ctx context.Context, dest string, opts ExtractOptions) error {
	if r.cipher == nil {
		return ErrNoKey
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	if opts.Jobs > 1 {
		g.SetLimit(opts.Jobs)
	} else {
		g.SetLimit(1)
	}

	for _, e := range r.entries {
		g.Go(func() error {
			if err := r.extractEntry(ctx, dest, e); err != nil {
				return fmt.Errorf("extracting %q: %w", e.Name, err)
			}
			if opts.OnEntry != nil {
				opts.OnEntry(e)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Reader) extractEntry(ctx context.Context, dest string, e *Entry) error {
	src, err := r.Open(e)
	if err != nil {
		return err
	}

	path := filepath.Join(dest, filepath.FromSlash(e.Name))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating entry directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating entry file: %w", err)
	}
	defer f.Close()

	if err := copyContext(ctx, f, src); err != nil {
		return err
	}
	return f.Close()
}

// copyContext copies src to dst, checking for cancellation between reads.
func copyContext(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return fmt.Errorf("writing entry: %w", werr)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
