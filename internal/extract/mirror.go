package extract

import (
	"context"
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/log"
	"golang.org/x/sync/errgroup"
	"strings"
)

type mirrorOption struct {
	label   string
	encoded string
}

func (e *Extractor) mirrorSelect(ctx context.Context, s MirrorSelectPage) ([]domain.Embed, error) {
	doc, err := e.get(ctx, s.PageURL)
	if err != nil {
		return nil, err
	}

	sel := doc.Find("select.mirror option")
	var options []mirrorOption
	for i := range sel.Nodes {
		opt := sel.Eq(i)
		encoded := opt.AttrOr("value", "")
		if encoded == "" {
			encoded = opt.AttrOr("data-em", "")
		}
		label := strings.TrimSpace(opt.Text())
		if encoded == "" || label == "" {
			continue
		}
		options = append(options, mirrorOption{label: label, encoded: encoded})
	}
	if len(options) == 0 {
		return nil, fmt.Errorf("%s has no mirrors: %w", s.PageURL, domain.ErrParseMismatch)
	}

	slots := make([][]domain.Embed, len(options))
	g, gctx := errgroup.WithContext(ctx)
	for i, opt := range options {
		g.Go(func() error {
			src, err := decodeIframe(opt.encoded)
			if err == nil {
				src, err = e.resolvePlayer(gctx, src, origin(s.PageURL))
			}
			if err != nil {
				log.Debug("Mirror option failed", "page", s.PageURL, "option", opt.label, "error", err)
				return nil
			}
			slots[i] = []domain.Embed{{Server: opt.label, URL: src, Resolution: resolutionOf(opt.label)}}
			return nil
		})
	}
	_ = g.Wait()

	return compact(slots), nil
}
