package extract

// EmbedSource describes where the embeds of one episode live.  It is sealed: the only implementations are
// AjaxPlayerPage, MirrorSelectPage and EncodedStreamList, and Extract handles each of them.
type EmbedSource interface {
	// Strategy names the extraction strategy, used in logs and metrics
	Strategy() string
	sealed()
}

// AjaxPlayerPage is an episode page listing player options that are each resolved by an admin-ajax POST.  The
// returned iframe can point at an intermediate player page that needs one more fetch.
type AjaxPlayerPage struct {
	PageURL string
	AjaxURL string
	// Referer is sent with the intermediate player page fetch
	Referer string
}

// MirrorSelectPage is an episode page with a mirror dropdown whose options carry base64 encoded iframe markup
type MirrorSelectPage struct {
	PageURL string
}

// EncodedStreamList is a base64 JSON list of formats and their stream URLs, carried inline by the episode listing
type EncodedStreamList struct {
	Payload string
}

func (AjaxPlayerPage) Strategy() string    { return "ajax_player" }
func (MirrorSelectPage) Strategy() string  { return "mirror_select" }
func (EncodedStreamList) Strategy() string { return "encoded_list" }

func (AjaxPlayerPage) sealed()    {}
func (MirrorSelectPage) sealed()  {}
func (EncodedStreamList) sealed() {}
