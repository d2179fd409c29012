package node

// ExtraSettings carries the per-request knobs derived from query params
// overlaid on process-wide config defaults (precedence: request arg >
// external-config arg > process default, resolved by the caller before the
// pipeline runs).
type ExtraSettings struct {
	NodelistMode       bool
	AddEmoji           bool
	RemoveOldEmoji     bool
	Sort               bool
	SortScript         string
	AppendType         bool
	ClashNewFieldName  bool
	ManagedConfigPrefix string
	SurgeSSRPath       string
	QuantumultXDevID   string
	Rename             []RenameRule
	Emoji              []EmojiRule
	IncludeRemarks     []string
	ExcludeRemarks     []string

	UDP            Tri
	TFO            Tri
	SkipCertVerify Tri
	TLS13          Tri

	OverwriteOriginalRules bool
	EnableInsert           bool

	MaxAllowedRules int

	Filename string
	Interval int
	Strict   bool

	// UserAgent is the server's own fixed identifier, used both as the
	// outbound fetch User-Agent and as the self-recursion loop guard at
	// the HTTP edge.
	UserAgent string

	// ScopeLimit forces local-file fetches off; true whenever the
	// request arrived without a valid access token.
	ScopeLimit bool

	AccessToken string
}

// RenameRule is one `match@replace` pipeline rename entry, optionally gated
// by group name/id via the `!!GROUP=`/`!!GROUPID=`/`!!INSERT=` prefix
// grammar, or delegated to a user script via `!!script:`.
type RenameRule struct {
	Match       string
	Replace     string
	GroupMatch  string // from !!GROUP=
	GroupIDExpr string // from !!GROUPID= / !!INSERT=, range grammar e.g. "1-3,!4,5+"
	Script      string // from !!script:<body|path:...>
}

// EmojiRule is one `match,emoji` pipeline entry with the same gating prefix
// grammar as RenameRule, including delegating the emoji choice itself to a
// user script via `!!script:`.
type EmojiRule struct {
	Match       string
	Emoji       string
	GroupMatch  string
	GroupIDExpr string
	Script      string // from !!script:<body|path:...>
}
