// Package nft mints generated images as compressed NFTs through the Helius
// mint API.
package nft

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// Attribute is one metadata trait.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// MintRequest describes the asset to mint.
type MintRequest struct {
	Recipient            solana.PublicKey
	Name                 string
	Symbol               string
	Description          string
	ImageURL             string
	ExternalURL          string
	Attributes           []Attribute
	SellerFeeBasisPoints int
}

// MintResult identifies a minted asset.
type MintResult struct {
	AssetID    string
	Signature  string
	ContentURI string // off-chain metadata URI, or the image URL when unavailable
}

// RPCClient is the subset of the JSON-RPC client we need.
type RPCClient interface {
	CallFor(ctx context.Context, out interface{}, method string, params ...interface{}) error
}

// Minter mints compressed NFTs on a Helius RPC endpoint. Helius pays the mint
// fees, so the recipient never signs.
type Minter struct {
	rpc    RPCClient
	logger *slog.Logger
}

// NewMinter creates a Minter for a Helius RPC URL (including the api-key query).
func NewMinter(heliusRPCURL string, logger *slog.Logger) *Minter {
	return NewMinterWithClient(jsonrpc.NewClient(heliusRPCURL), logger)
}

// NewMinterWithClient creates a Minter on an existing JSON-RPC client.
func NewMinterWithClient(client RPCClient, logger *slog.Logger) *Minter {
	return &Minter{rpc: client, logger: logger}
}

type mintParams struct {
	Name                 string      `json:"name"`
	Symbol               string      `json:"symbol"`
	Owner                string      `json:"owner"`
	Description          string      `json:"description"`
	Attributes           []Attribute `json:"attributes"`
	ImageURL             string      `json:"imageUrl"`
	ExternalURL          string      `json:"externalUrl,omitempty"`
	SellerFeeBasisPoints int         `json:"sellerFeeBasisPoints"`
	ConfirmTransaction   bool        `json:"confirmTransaction"`
}

type mintResponse struct {
	Signature string `json:"signature"`
	Minted    bool   `json:"minted"`
	AssetID   string `json:"assetId"`
}

type assetResponse struct {
	ID      string `json:"id"`
	Content struct {
		JSONURI string `json:"json_uri"`
		Files   []struct {
			URI string `json:"uri"`
		} `json:"files"`
	} `json:"content"`
}

// Mint mints req.ImageURL to req.Recipient and resolves the asset's metadata URI.
func (m *Minter) Mint(ctx context.Context, req MintRequest) (*MintResult, error) {
	if req.Recipient.IsZero() {
		return nil, fmt.Errorf("mint requires a recipient")
	}
	if strings.TrimSpace(req.ImageURL) == "" {
		return nil, fmt.Errorf("mint requires an image url")
	}
	if req.Attributes == nil {
		req.Attributes = []Attribute{}
	}

	var minted mintResponse
	err := m.rpc.CallFor(ctx, &minted, "mintCompressedNft", mintParams{
		Name:                 req.Name,
		Symbol:               req.Symbol,
		Owner:                req.Recipient.String(),
		Description:          req.Description,
		Attributes:           req.Attributes,
		ImageURL:             req.ImageURL,
		ExternalURL:          req.ExternalURL,
		SellerFeeBasisPoints: req.SellerFeeBasisPoints,
		ConfirmTransaction:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("mintCompressedNft: %w", err)
	}
	if !minted.Minted || minted.AssetID == "" {
		return nil, fmt.Errorf("mintCompressedNft: asset was not minted (signature %q)", minted.Signature)
	}

	result := &MintResult{
		AssetID:    minted.AssetID,
		Signature:  minted.Signature,
		ContentURI: req.ImageURL,
	}

	uri, err := m.ContentURI(ctx, minted.AssetID)
	if err != nil {
		m.logger.WarnContext(ctx, "failed to resolve asset metadata, using image url",
			"asset_id", minted.AssetID,
			"error", err,
		)
		return result, nil
	}
	result.ContentURI = uri

	m.logger.InfoContext(ctx, "minted compressed nft",
		"asset_id", result.AssetID,
		"owner", req.Recipient.String(),
		"signature", result.Signature,
		"content_uri", result.ContentURI,
	)
	return result, nil
}

// ContentURI returns the metadata URI of an asset via the DAS getAsset method.
func (m *Minter) ContentURI(ctx context.Context, assetID string) (string, error) {
	var asset assetResponse
	if err := m.rpc.CallFor(ctx, &asset, "getAsset", map[string]string{"id": assetID}); err != nil {
		return "", fmt.Errorf("getAsset: %w", err)
	}
	if asset.Content.JSONURI != "" {
		return asset.Content.JSONURI, nil
	}
	if len(asset.Content.Files) > 0 && asset.Content.Files[0].URI != "" {
		return asset.Content.Files[0].URI, nil
	}
	return "", fmt.Errorf("getAsset: asset %s has no content uri", assetID)
}
