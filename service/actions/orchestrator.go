package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/brojonat/geneva/service/analytics"
	"github.com/brojonat/geneva/service/imagegen"
	"github.com/brojonat/geneva/service/metrics"
	"github.com/brojonat/geneva/service/nft"
	"github.com/brojonat/geneva/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BasePath is the route prefix of every step.
const BasePath = "/api/actions/geneva"

// DefaultIcon is shown on descriptors before an image exists.
const DefaultIcon = "https://pplx-res.cloudinary.com/image/upload/v1725313230/ai_generated_images/azth7nt5jly1xyruzdhh.png"

// memoLimit keeps prompt memos well inside the transaction size limit.
const memoLimit = 400

// Confirmer waits for a prior transaction to reach confirmed commitment.
type Confirmer interface {
	Confirm(ctx context.Context, signature string) (solana.ConfirmationStatus, error)
}

// TransactionBuilder assembles an unsigned transaction paid for by feePayer.
type TransactionBuilder interface {
	Build(ctx context.Context, feePayer solanago.PublicKey, instructions ...solanago.Instruction) (*solanago.Transaction, error)
}

// PaymentPlanner produces the instructions that charge a tier price.
type PaymentPlanner interface {
	PaymentInstructions(ctx context.Context, p solana.Payment) ([]solanago.Instruction, error)
}

// ImageGenerator turns a prompt into a hosted image URL using model.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt, model string) (string, error)
}

// Minter mints an image as a compressed NFT.
type Minter interface {
	Mint(ctx context.Context, req nft.MintRequest) (*nft.MintResult, error)
}

// Analytics attributes transactions and tracks chain progress.
type Analytics interface {
	Instruction(ctx context.Context, account solanago.PublicKey, requestURL string) (solanago.Instruction, string, error)
	Track(ctx context.Context, event analytics.Event) error
}

// Recorder keeps an audit trail of completed side effects.
type Recorder interface {
	Record(ctx context.Context, event analytics.Event) error
}

// TierConfig prices a tier and names the model that serves it.
type TierConfig struct {
	Label string
	Model string
	Price uint64 // smallest unit of the payment mint, or lamports
}

// Config is the read-only configuration shared by every request.
type Config struct {
	BaseURL         string // absolute origin for hrefs; empty yields relative hrefs
	Icon            string
	PaymentRequired bool
	MintEnabled     bool
	Treasury        solanago.PublicKey
	PaymentMint     solanago.PublicKey // zero for native SOL
	PaymentDecimals uint8
	PaymentSymbol   string
	PriorityFee     uint64 // micro-lamports per compute unit
	Tiers           map[Tier]TierConfig
	AnalyticsStrict bool
	CollectionName  string
}

// DefaultTiers returns the standard and ultra tiers at the given prices.
func DefaultTiers(standard, ultra uint64) map[Tier]TierConfig {
	return map[Tier]TierConfig{
		TierStandard: {Label: "Standard", Model: imagegen.ModelStandard, Price: standard},
		TierUltra:    {Label: "Ultra realistic", Model: imagegen.ModelUltra, Price: ultra},
	}
}

// Dependencies are the collaborators an Orchestrator drives. Minter may be nil
// when minting is disabled; Analytics and Recorder are optional.
type Dependencies struct {
	Confirmer Confirmer
	Builder   TransactionBuilder
	Payments  PaymentPlanner
	Generator ImageGenerator
	Minter    Minter
	Analytics Analytics
	Recorder  Recorder
}

// Orchestrator routes GET and POST requests through the step table.
type Orchestrator struct {
	cfg     Config
	deps    Dependencies
	steps   map[StepName]Step
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewOrchestrator validates cfg against deps and builds the step table.
func NewOrchestrator(cfg Config, deps Dependencies, m *metrics.Metrics, logger *slog.Logger) (*Orchestrator, error) {
	if deps.Confirmer == nil || deps.Builder == nil || deps.Generator == nil {
		return nil, fmt.Errorf("confirmer, builder and generator are required")
	}
	if cfg.PaymentRequired {
		if deps.Payments == nil {
			return nil, fmt.Errorf("payment planner is required when payment is required")
		}
		if cfg.Treasury.IsZero() {
			return nil, fmt.Errorf("treasury is required when payment is required")
		}
	}
	if cfg.MintEnabled && deps.Minter == nil {
		return nil, fmt.Errorf("minter is required when minting is enabled")
	}
	if cfg.Tiers == nil {
		cfg.Tiers = DefaultTiers(0, 0)
	}
	for _, tier := range []Tier{TierStandard, TierUltra} {
		tc, ok := cfg.Tiers[tier]
		if !ok || tc.Model == "" {
			return nil, fmt.Errorf("tier %s is not configured", tier)
		}
		if cfg.PaymentRequired && tc.Price == 0 {
			return nil, fmt.Errorf("tier %s has no price", tier)
		}
	}
	if cfg.Icon == "" {
		cfg.Icon = DefaultIcon
	}
	if cfg.PaymentSymbol == "" {
		cfg.PaymentSymbol = "SOL"
	}
	if cfg.CollectionName == "" {
		cfg.CollectionName = "Geneva"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	o := &Orchestrator{
		cfg:     cfg,
		deps:    deps,
		logger:  logger,
		metrics: m,
	}
	o.steps = o.transitions()
	return o, nil
}

// Steps returns the step names in chain order.
func (o *Orchestrator) Steps() []StepName {
	return []StepName{StepGenerate, StepRender, StepMint, StepComplete}
}

// Describe returns the GET descriptor of step. baseURL overrides the
// configured origin when non-empty.
func (o *Orchestrator) Describe(step StepName, baseURL string) (*Descriptor, error) {
	s, ok := o.steps[step]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStep, step)
	}
	return s.Describe(o.origin(baseURL)), nil
}

// stepInput is everything a step's Execute needs after common validation.
type stepInput struct {
	account    solanago.PublicKey
	signature  string
	state      State
	requestURL string
}

// Execute runs the POST algorithm of step:
// validate account, require and confirm the prior signature, decode carried
// state, perform the side effect and build the successor response.
// Nothing is returned alongside an error.
func (o *Orchestrator) Execute(ctx context.Context, step StepName, req StepRequest, query url.Values, requestURL string) (resp *StepResponse, err error) {
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		o.metrics.RecordStep(string(step), outcome, time.Since(start).Seconds())
	}()

	s, ok := o.steps[step]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStep, step)
	}

	account, err := solanago.PublicKeyFromBase58(strings.TrimSpace(req.Account))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}

	signature := strings.TrimSpace(req.Signature)
	if s.RequiresSignature && signature == "" {
		return nil, fmt.Errorf("%w: signature of the previous transaction is required", ErrInvalidSignature)
	}

	state, err := o.decodeInput(query, req.Data)
	if err != nil {
		return nil, err
	}
	if err := state.Require(s.Carried...); err != nil {
		return nil, err
	}

	if signature != "" {
		if err := o.confirm(ctx, signature); err != nil {
			return nil, err
		}
	}

	o.logger.DebugContext(ctx, "executing step",
		"step", step,
		"account", account.String(),
		"tier", state.Tier,
		"has_signature", signature != "",
	)

	return s.Execute(ctx, &stepInput{
		account:    account,
		signature:  signature,
		state:      state,
		requestURL: requestURL,
	})
}

// decodeInput merges carried query state with POST data. Data wins for the
// prompt and tier so a client may submit form values either way.
func (o *Orchestrator) decodeInput(query url.Values, data map[string]any) (State, error) {
	merged := url.Values{}
	for k, v := range query {
		merged[k] = v
	}

	if raw := data[string(FieldPrompt)]; raw != nil {
		prompt, isString := raw.(string)
		if !isString {
			return State{}, fmt.Errorf("%w: prompt must be a string", ErrInvalidCarriedState)
		}
		if strings.TrimSpace(prompt) != "" {
			merged.Set(string(FieldPrompt), prompt)
		}
	}
	if raw := data[string(FieldTier)]; raw != nil {
		tier, valid := ParseTier(raw)
		if !valid {
			return State{}, fmt.Errorf("%w: unknown tier %v", ErrInvalidCarriedState, raw)
		}
		merged.Set(string(FieldTier), string(tier))
	}

	return DecodeState(merged)
}

func (o *Orchestrator) confirm(ctx context.Context, signature string) error {
	status, err := o.deps.Confirmer.Confirm(ctx, signature)
	if err != nil {
		o.logger.WarnContext(ctx, "previous transaction not confirmed",
			"signature", signature,
			"status", status,
			"error", err,
		)
		if errors.Is(err, solana.ErrInvalidSignature) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrTransactionNotConfirmed, err)
	}
	if !status.Advances() {
		return fmt.Errorf("%w: status %s", ErrTransactionNotConfirmed, status)
	}
	return nil
}

// generate runs the image side effect for the carried prompt and tier.
func (o *Orchestrator) generate(ctx context.Context, in *stepInput) (string, error) {
	tier := o.cfg.Tiers[in.state.Tier]

	start := time.Now()
	imageURL, err := o.deps.Generator.Generate(ctx, in.state.Prompt, tier.Model)
	o.metrics.RecordGeneration(string(in.state.Tier), err, time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("%w: image generation: %w", ErrDomainActionFailed, err)
	}
	if !validImageURL(imageURL) {
		return "", fmt.Errorf("%w: image generation returned an invalid url", ErrDomainActionFailed)
	}

	o.logger.InfoContext(ctx, "image generated",
		"account", in.account.String(),
		"tier", in.state.Tier,
		"model", tier.Model,
		"image_url", imageURL,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return imageURL, nil
}

// mint runs the compressed NFT side effect for the carried image.
func (o *Orchestrator) mint(ctx context.Context, in *stepInput) (*nft.MintResult, error) {
	req := nft.MintRequest{
		Recipient:   in.account,
		Name:        o.cfg.CollectionName,
		Symbol:      "GNV",
		Description: in.state.Prompt,
		ImageURL:    in.state.ImageURL,
		Attributes: []nft.Attribute{
			{TraitType: "tier", Value: string(in.state.Tier)},
		},
	}

	start := time.Now()
	result, err := o.deps.Minter.Mint(ctx, req)
	o.metrics.RecordMint(err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: mint: %w", ErrDomainActionFailed, err)
	}

	o.logger.InfoContext(ctx, "image minted",
		"account", in.account.String(),
		"asset_id", result.AssetID,
		"content_uri", result.ContentURI,
	)
	return result, nil
}

// continuation builds the next unsigned transaction and points at next.
// Instructions always start with the priority fee so no step is memo-only.
func (o *Orchestrator) continuation(ctx context.Context, step StepName, in *stepInput, next StepName, carried State, message string, instructions ...solanago.Instruction) (*StepResponse, error) {
	ixs := make([]solanago.Instruction, 0, len(instructions)+2)
	ixs = append(ixs, solana.ComputeUnitPrice(o.cfg.PriorityFee))
	ixs = append(ixs, instructions...)

	reference := ""
	if o.deps.Analytics != nil {
		ix, ref, err := o.deps.Analytics.Instruction(ctx, in.account, in.requestURL)
		switch {
		case err != nil && o.cfg.AnalyticsStrict:
			return nil, fmt.Errorf("%w: %w", ErrAnalyticsFailed, err)
		case err != nil:
			o.metrics.RecordAnalyticsFailure("instruction")
			o.logger.WarnContext(ctx, "skipping attribution instruction", "error", err)
		case ix != nil:
			ixs = append(ixs, ix)
			reference = ref
		}
	}

	tx, err := o.deps.Builder.Build(ctx, in.account, ixs...)
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	encoded, err := solana.EncodeTransaction(tx)
	if err != nil {
		return nil, err
	}
	o.metrics.RecordTransactionBuilt(string(step))

	if err := o.track(ctx, step, in, carried, reference, ""); err != nil {
		return nil, err
	}

	return &StepResponse{
		Type:        TypeTransaction,
		Transaction: encoded,
		Message:     message,
		Links: &ResponseLinks{
			Next: NextLink{
				Type: TypePost,
				Href: EncodeState(o.stepPath(o.cfg.BaseURL, next), carried),
			},
		},
	}, nil
}

// track publishes the step event and records it in the ledger. Tracking
// failures abort only in strict mode; ledger failures never abort.
func (o *Orchestrator) track(ctx context.Context, step StepName, in *stepInput, s State, reference, assetID string) error {
	event := analytics.Event{
		ID:         uuid.NewString(),
		Step:       string(step),
		Account:    in.account.String(),
		Reference:  reference,
		Signature:  in.signature,
		Prompt:     s.Prompt,
		Tier:       string(s.Tier),
		ImageURL:   s.ImageURL,
		AssetID:    assetID,
		RequestURL: in.requestURL,
		Timestamp:  time.Now().UTC(),
	}

	if o.deps.Analytics != nil {
		if err := o.deps.Analytics.Track(ctx, event); err != nil {
			if o.cfg.AnalyticsStrict {
				return fmt.Errorf("%w: %w", ErrAnalyticsFailed, err)
			}
			o.metrics.RecordAnalyticsFailure("track")
			o.logger.WarnContext(ctx, "failed to track action event", "step", step, "error", err)
		}
	}

	if o.deps.Recorder != nil {
		if err := o.deps.Recorder.Record(ctx, event); err != nil {
			o.logger.WarnContext(ctx, "failed to record action event", "step", step, "error", err)
		}
	}
	return nil
}

// payment returns the instructions charging the carried tier's price.
func (o *Orchestrator) payment(ctx context.Context, in *stepInput) ([]solanago.Instruction, error) {
	tier := o.cfg.Tiers[in.state.Tier]
	ixs, err := o.deps.Payments.PaymentInstructions(ctx, solana.Payment{
		Payer:    in.account,
		Treasury: o.cfg.Treasury,
		Mint:     o.cfg.PaymentMint,
		Decimals: o.cfg.PaymentDecimals,
		Amount:   tier.Price,
	})
	if err != nil {
		return nil, fmt.Errorf("build payment: %w", err)
	}
	return ixs, nil
}

// PriceLabel renders a tier price in whole units, e.g. "0.26897 SEND".
func (o *Orchestrator) PriceLabel(tier Tier) string {
	price := decimal.New(int64(o.cfg.Tiers[tier].Price), -int32(o.cfg.PaymentDecimals))
	return price.String() + " " + o.cfg.PaymentSymbol
}

func (o *Orchestrator) origin(baseURL string) string {
	if baseURL != "" {
		return strings.TrimSuffix(baseURL, "/")
	}
	return o.cfg.BaseURL
}

func (o *Orchestrator) stepPath(origin string, step StepName) string {
	return origin + BasePath + "/" + string(step)
}

// memoText trims text to memoLimit bytes on a rune boundary.
func memoText(text string) string {
	if len(text) <= memoLimit {
		return text
	}
	cut := memoLimit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
