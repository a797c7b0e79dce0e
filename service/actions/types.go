package actions

// ActionType is the "type" discriminator of a descriptor or POST response.
type ActionType string

const (
	TypeAction      ActionType = "action"
	TypeTransaction ActionType = "transaction"
	TypePost        ActionType = "post"
	TypeCompleted   ActionType = "completed"
)

// ParameterType is the input kind a client renders for a Parameter.
type ParameterType string

const (
	ParamText     ParameterType = "text"
	ParamTextarea ParameterType = "textarea"
	ParamCheckbox ParameterType = "checkbox"
)

// Descriptor is the GET payload advertising one step of the chain.
type Descriptor struct {
	Type        ActionType       `json:"type"`
	Icon        string           `json:"icon"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Label       string           `json:"label"`
	Disabled    bool             `json:"disabled,omitempty"`
	Links       *DescriptorLinks `json:"links,omitempty"`
}

// DescriptorLinks lists the actions a client may take from a descriptor.
type DescriptorLinks struct {
	Actions []Link `json:"actions"`
}

// Link is one actionable button of a descriptor.
type Link struct {
	Type       ActionType  `json:"type,omitempty"`
	Label      string      `json:"label"`
	Href       string      `json:"href"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

// Parameter is an input field the client collects before POSTing a Link.
type Parameter struct {
	Type     ParameterType `json:"type,omitempty"`
	Name     string        `json:"name"`
	Label    string        `json:"label"`
	Required bool          `json:"required,omitempty"`
	Options  []Option      `json:"options,omitempty"`
}

// Option is one selectable value of a checkbox Parameter.
type Option struct {
	Label    string `json:"label"`
	Value    string `json:"value"`
	Selected bool   `json:"selected,omitempty"`
}

// StepRequest is the POST body of every step.
// Signature, when present, belongs to the previous step's transaction.
type StepRequest struct {
	Account   string         `json:"account"`
	Signature string         `json:"signature,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// StepResponse is either a continuation (Type "transaction") carrying an
// unsigned transaction and exactly one next link, or a terminal payload
// (Type "completed").
type StepResponse struct {
	Type        ActionType     `json:"type"`
	Transaction string         `json:"transaction,omitempty"`
	Message     string         `json:"message,omitempty"`
	Links       *ResponseLinks `json:"links,omitempty"`

	Title       string `json:"title,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
	Signature   string `json:"signature,omitempty"`
}

// ResponseLinks holds the successor of a continuation.
type ResponseLinks struct {
	Next NextLink `json:"next"`
}

// NextLink points the client at the next step.
type NextLink struct {
	Type ActionType `json:"type"`
	Href string     `json:"href"`
}

// Terminal reports whether the response ends the chain.
func (r *StepResponse) Terminal() bool {
	return r.Type == TypeCompleted
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Message string `json:"message"`
}
