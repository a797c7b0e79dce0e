package actions

import "fmt"

const title = "Geneva"

func (o *Orchestrator) describeGenerate(origin string) *Descriptor {
	description := "Generate an image based on a prompt"
	if o.cfg.PaymentRequired {
		description = fmt.Sprintf("%s. Standard: %s. Ultra realistic: %s.",
			description, o.PriceLabel(TierStandard), o.PriceLabel(TierUltra))
	}
	if o.cfg.MintEnabled {
		description += " The result is minted to your wallet as a compressed NFT."
	}

	// Templates are substituted by the client, so they must not be escaped.
	href := fmt.Sprintf("%s?%s={%s}&%s={%s}",
		o.stepPath(origin, StepGenerate), FieldPrompt, FieldPrompt, FieldTier, FieldTier)

	return &Descriptor{
		Type:        TypeAction,
		Icon:        o.cfg.Icon,
		Title:       title,
		Description: description,
		Label:       "Generate Image",
		Links: &DescriptorLinks{
			Actions: []Link{
				{
					Type:  TypeTransaction,
					Label: "Generate Image",
					Href:  href,
					Parameters: []Parameter{
						{
							Type:     ParamTextarea,
							Name:     string(FieldPrompt),
							Label:    "Describe the image",
							Required: true,
						},
						{
							Type:  ParamCheckbox,
							Name:  string(FieldTier),
							Label: "Quality",
							Options: []Option{
								{Label: o.cfg.Tiers[TierUltra].Label, Value: string(TierUltra)},
							},
						},
					},
				},
			},
		},
	}
}

// describeCallback describes a step that is only reached through a next link.
// It has no actions of its own.
func (o *Orchestrator) describeCallback(step StepName) func(string) *Descriptor {
	labels := map[StepName]string{
		StepRender:   "Rendering",
		StepMint:     "Minting",
		StepComplete: "Finishing",
	}
	return func(string) *Descriptor {
		return &Descriptor{
			Type:        TypeAction,
			Icon:        o.cfg.Icon,
			Title:       title,
			Description: "Continue from the generate action to reach this step.",
			Label:       labels[step],
			Disabled:    true,
		}
	}
}
