package extract

import (
	"context"
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/httpclient"
	"github.com/PizzaHomicide/otakuin/internal/log"
	"golang.org/x/sync/errgroup"
	"net/http"
	"net/url"
	"strings"
)

type playerOption struct {
	label string
	nume  string
	kind  string
}

func (e *Extractor) ajaxPlayer(ctx context.Context, s AjaxPlayerPage) ([]domain.Embed, error) {
	doc, err := e.get(ctx, s.PageURL)
	if err != nil {
		return nil, err
	}

	sel := doc.Find(".server_option .east_player_option")
	post := sel.First().AttrOr("data-post", "")
	if post == "" {
		return nil, fmt.Errorf("%s has no player options: %w", s.PageURL, domain.ErrParseMismatch)
	}

	var options []playerOption
	for i := range sel.Nodes {
		opt := sel.Eq(i)
		options = append(options, playerOption{
			label: strings.TrimSpace(opt.Text()),
			nume:  opt.AttrOr("data-nume", ""),
			kind:  opt.AttrOr("data-type", ""),
		})
	}

	slots := make([][]domain.Embed, len(options))
	g, gctx := errgroup.WithContext(ctx)
	for i, opt := range options {
		g.Go(func() error {
			embed, err := e.ajaxOption(gctx, s, post, opt)
			if err != nil {
				log.Debug("Player option failed", "page", s.PageURL, "option", opt.label, "error", err)
				return nil
			}
			slots[i] = []domain.Embed{embed}
			return nil
		})
	}
	_ = g.Wait()

	return compact(slots), nil
}

func (e *Extractor) ajaxOption(ctx context.Context, s AjaxPlayerPage, post string, opt playerOption) (domain.Embed, error) {
	form := url.Values{
		"action": {"player_ajax"},
		"post":   {post},
		"nume":   {opt.nume},
		"type":   {opt.kind},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.AjaxURL, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.Embed{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", s.PageURL)

	doc, err := httpclient.FetchDocument(e.http, req)
	if err != nil {
		return domain.Embed{}, err
	}

	src := strings.TrimSpace(doc.Find("iframe").First().AttrOr("src", ""))
	if src == "" {
		return domain.Embed{}, fmt.Errorf("ajax response has no iframe: %w", domain.ErrParseMismatch)
	}

	resolved, err := e.resolvePlayer(ctx, src, s.Referer)
	if err != nil {
		return domain.Embed{}, err
	}

	return domain.Embed{Server: opt.label, URL: resolved, Resolution: resolutionOf(opt.label)}, nil
}
