package indexer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/hyperjump/civicrag/internal/apperrors"
	"github.com/hyperjump/civicrag/internal/models"
)

// ImportResult counts the outcome of an import.
type ImportResult struct {
	Stored  int `json:"stored"`
	Pending int `json:"pending"`
}

// ImportFile reads complaints from a JSON array or a JSON Lines file and indexes each one.
// Complaints whose embedding failed are stored and counted as pending. Any other error
// stops the import.
func (idx *Indexer) ImportFile(ctx context.Context, path string) (ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()
	return idx.Import(ctx, f)
}

// Import is ImportFile over a reader.
func (idx *Indexer) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	var res ImportResult
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return res, nil
	}
	if err != nil {
		return res, err
	}

	handle := func(c *models.Complaint) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := idx.IndexComplaint(ctx, c)
		switch {
		case err == nil:
			res.Stored++
		case errors.Is(err, apperrors.ErrProviderUnavailable) || errors.Is(err, apperrors.ErrMalformedResponse):
			res.Stored++
			res.Pending++
			idx.logger.Debug("indexer embedding pending", zap.String("id", c.ID), zap.Error(err))
		default:
			return err
		}
		return nil
	}

	if first == '[' {
		dec := json.NewDecoder(br)
		if _, err := dec.Token(); err != nil {
			return res, fmt.Errorf("decode import: %w", err)
		}
		for n := 1; dec.More(); n++ {
			var c models.Complaint
			if err := dec.Decode(&c); err != nil {
				return res, fmt.Errorf("decode complaint %d: %w", n, err)
			}
			if err := handle(&c); err != nil {
				return res, err
			}
		}
		return res, nil
	}

	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		var c models.Complaint
		if err := json.Unmarshal(b, &c); err != nil {
			return res, fmt.Errorf("decode line %d: %w", line, err)
		}
		if err := handle(&c); err != nil {
			return res, err
		}
	}
	return res, scanner.Err()
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
