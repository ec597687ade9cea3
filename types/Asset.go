package types

type AssetType string

const (
	AssetTypeStock  AssetType = "STOCK"
	AssetTypeCrypto AssetType = "CRYPTO"
	AssetTypeEtf    AssetType = "ETF"
)

// Asset is a row of the instrument master table. The universe is resolved
// to assets once at startup.
type Asset struct {
	Id     int       `json:"id"`
	Symbol string    `json:"symbol"`
	Name   string    `json:"name"`
	Type   AssetType `json:"type"`
}
