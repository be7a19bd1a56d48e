package providers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/web3-frozen/chainsync/internal/chain"
	"github.com/web3-frozen/chainsync/internal/resolve"
)

const chainlistURL = "https://chainlist.org"

// Chainlist scrapes the rendered chain directory with headless Chrome.
// The site is client-rendered, so this is the only way to read it; the
// provider is disabled by default and carries the lowest trust rank.
type Chainlist struct {
	logger *slog.Logger
}

func NewChainlist(logger *slog.Logger) *Chainlist {
	return &Chainlist{logger: logger}
}

func (c *Chainlist) Name() string { return "chainlist" }

type chainlistCard struct {
	Name    string   `json:"name"`
	ChainID int64    `json:"chainId"`
	RPC     []string `json:"rpc"`
}

func (c *Chainlist) Resolve(ctx context.Context, name chain.Name) (*chain.Partial, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-crash-reporter", true),
		chromedp.Flag("crash-dumps-dir", "/tmp"),
		chromedp.UserDataDir("/tmp/chromedp-profile"),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	searchURL := chainlistURL + "/?search=" + url.QueryEscape(name.Slug())

	var resultJSON string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(searchURL),
		chromedp.WaitVisible(`main a[href^="/chain/"]`, chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
		chromedp.Evaluate(chainlistExtractJS, &resultJSON),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, resolve.WrapError(c.Name(), resolve.ErrTimeout, err)
		}
		return nil, resolve.WrapError(c.Name(), resolve.ErrTransport, err)
	}

	var cards []chainlistCard
	if err := json.Unmarshal([]byte(resultJSON), &cards); err != nil {
		return nil, resolve.WrapError(c.Name(), resolve.ErrMalformed, err)
	}
	if len(cards) == 0 {
		return nil, resolve.NewError(c.Name(), resolve.ErrNotFound, "no chain card for "+name.String())
	}

	card := cards[0]
	c.logger.Info("scraped chainlist card", "chain", name, "matched", card.Name, "rpcs", len(card.RPC))

	p := &chain.Partial{
		Provider:  c.Name(),
		FetchedAt: time.Now().UTC(),
	}
	if card.ChainID > 0 {
		p.ChainID = chain.Int64(card.ChainID)
	}
	if len(card.RPC) > 0 {
		p.RPCURLs = card.RPC
	}
	return p, nil
}

// chainlistExtractJS is evaluated in the browser to pull the visible
// chain cards from the rendered search results.
const chainlistExtractJS = `
(() => {
	const cards = document.querySelectorAll('main a[href^="/chain/"]');
	const data = [];
	cards.forEach(card => {
		const name = (card.querySelector('h2, .chain-name')?.textContent || '').trim();
		const idText = (card.getAttribute('href') || '').split('/chain/')[1] || '';
		const chainId = parseInt(idText, 10);
		const rpc = [];
		card.querySelectorAll('td.rpc-url, [data-rpc]').forEach(el => {
			const u = (el.textContent || el.getAttribute('data-rpc') || '').trim();
			if (u.startsWith('http') || u.startsWith('wss')) rpc.push(u);
		});
		if (name || !isNaN(chainId)) {
			data.push({ name: name, chainId: isNaN(chainId) ? 0 : chainId, rpc: rpc });
		}
	});
	return JSON.stringify(data);
})()
`
