package pagination

import (
	"context"
	"fmt"
)

// pageNumberStrategy increments a page counter until a stop signal is seen.
type pageNumberStrategy struct {
	opts Options
}

func (s *pageNumberStrategy) Paginate(ctx context.Context, fetch FetchFunc, start Token, visit VisitFunc) error {
	number := start.Page
	if number <= 0 {
		number = 1
	}

	seen := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.opts.Logger.Debug("fetching page", "page", number, "pageSize", s.opts.PageSize)
		payload, err := fetch(ctx, Token{Page: number})
		if err != nil {
			return fmt.Errorf("error fetching page %d: %w", number, err)
		}

		records, found := ExtractItems(payload, s.opts.ItemsKeys)
		if !found {
			s.opts.Logger.Debug("no items key in response, treating page as empty", "page", number, "keys", s.opts.ItemsKeys)
		}
		m := decodeMeta(payload, s.opts.Logger)
		page := &Page{
			Number:     number,
			Records:    records,
			TotalPages: m.totalPages(),
			TotalItems: m.totalItems(),
		}
		if len(records) == 0 {
			s.opts.Logger.Debug("empty page reached", "page", number)
			return nil
		}
		if err := visit(page); err != nil {
			return err
		}
		seen += len(records)

		switch {
		case s.opts.PageSize > 0 && len(records) < s.opts.PageSize:
			s.opts.Logger.Debug("short page reached", "page", number, "records", len(records))
			return nil
		case page.TotalItems > 0 && seen >= page.TotalItems:
			s.opts.Logger.Debug("reported total reached", "page", number, "total", page.TotalItems)
			return nil
		case page.TotalPages > 0 && number >= page.TotalPages:
			s.opts.Logger.Debug("last reported page reached", "page", number, "totalPages", page.TotalPages)
			return nil
		case m.Last != nil && *m.Last:
			s.opts.Logger.Debug("last page flag set", "page", number)
			return nil
		}
		number++
	}
}

// cursorStrategy follows an opaque next token.
type cursorStrategy struct {
	opts Options
}

func (s *cursorStrategy) Paginate(ctx context.Context, fetch FetchFunc, start Token, visit VisitFunc) error {
	token := Token{Cursor: start.Cursor}
	used := map[string]struct{}{}
	if token.Cursor != "" {
		used[token.Cursor] = struct{}{}
	}

	for number := 1; ; number++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.opts.Logger.Debug("fetching cursor page", "page", number, "cursor", token.Cursor)
		payload, err := fetch(ctx, token)
		if err != nil {
			return fmt.Errorf("error fetching cursor page %d: %w", number, err)
		}

		records, _ := ExtractItems(payload, s.opts.ItemsKeys)
		next := s.nextCursor(payload)
		if len(records) > 0 {
			if err := visit(&Page{Number: number, Records: records, NextCursor: next}); err != nil {
				return err
			}
		}

		if next == "" {
			s.opts.Logger.Debug("no next cursor, pagination complete", "pages", number)
			return nil
		}
		if _, dup := used[next]; dup {
			return fmt.Errorf("server returned cursor %q twice", next)
		}
		used[next] = struct{}{}
		token = Token{Cursor: next}

		if err := sleep(ctx, s.opts.Delay); err != nil {
			return err
		}
	}
}

func (s *cursorStrategy) nextCursor(payload interface{}) string {
	for _, key := range s.opts.NextKeys {
		if v := lookupString(payload, key); v != "" {
			return v
		}
	}
	return ""
}

// singleListStrategy issues one request that returns the whole record set.
type singleListStrategy struct {
	opts Options
}

func (s *singleListStrategy) Paginate(ctx context.Context, fetch FetchFunc, start Token, visit VisitFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := fetch(ctx, start)
	if err != nil {
		return fmt.Errorf("error fetching list: %w", err)
	}

	records, found := ExtractItems(payload, s.opts.ItemsKeys)
	if !found {
		switch v := payload.(type) {
		case map[string]interface{}:
			if len(v) > 0 {
				s.opts.Logger.Debug("no known items key, treating payload as one record", "keys", s.opts.ItemsKeys)
				records = []interface{}{v}
			}
		case string:
			if v != "" {
				records = []interface{}{v}
			}
		default:
			records = []interface{}{v}
		}
	}

	if len(records) == 0 {
		return nil
	}
	return visit(&Page{Number: 1, Records: records, TotalItems: len(records), TotalPages: 1})
}
