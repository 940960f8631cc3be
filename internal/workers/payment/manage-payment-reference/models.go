package managepaymentreference

const (
	ActionRegister = "register"
	ActionFlag     = "flag"
	ActionUnflag   = "unflag"
)

type Input struct {
	Action    string `json:"action"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount,omitempty"` // minor units, register only
	Note      string `json:"note,omitempty"`
}

type Output struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	UpdatedAt string `json:"updatedAt"` // ISO 8601
}
