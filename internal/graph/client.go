// Package graph - клиент GraphQL API Morpho для каталога рынков и vault'ов.
//
// Каталог - витринные данные (символы, APY, TVL): они приходят из
// индексатора Morpho, кэшируются в БД и никогда не участвуют в расчёте
// сумм транзакций. Суммы считаются только от on-chain состояния.
package graph

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
	"github.com/cp0x-org/pi-morpho-interface-sub000/pkg/retry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultURL - публичный endpoint индексатора Morpho
const DefaultURL = "https://blue-api.morpho.org/graphql"

// Config - настройки клиента каталога
type Config struct {
	URL     string
	ChainID int64
	// PageSize - размер страницы пагинации (default: 100)
	PageSize int
	// Timeout - таймаут одного HTTP запроса (default: 15s)
	Timeout time.Duration
}

// Client - GraphQL клиент Morpho API
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient создаёт клиент каталога.
func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// ============================================================
// Протокол GraphQL
// ============================================================

type gqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

// query выполняет один GraphQL запрос с retry на сетевые ошибки.
// out - указатель на структуру, соответствующую полю data.
func (c *Client) query(ctx context.Context, q string, vars map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(gqlRequest{Query: q, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshal query: %w", err)
	}

	return retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("morpho api: status %d", resp.StatusCode)
		}

		var envelope struct {
			Data   jsoniter.RawMessage `json:"data"`
			Errors []gqlError          `json:"errors"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if len(envelope.Errors) > 0 {
			return fmt.Errorf("morpho api: %s", envelope.Errors[0].Message)
		}
		return json.Unmarshal(envelope.Data, out)
	}, retry.NetworkConfig())
}

// ============================================================
// Каталог рынков
// ============================================================

const marketsQuery = `
query Markets($first: Int!, $skip: Int!, $chainId: [Int!]) {
  markets(first: $first, skip: $skip, where: { chainId_in: $chainId }) {
    items {
      uniqueKey
      lltv
      oracleAddress
      irmAddress
      loanAsset { address symbol }
      collateralAsset { address symbol }
      state {
        supplyApy
        borrowApy
        supplyAssetsUsd
        borrowAssetsUsd
      }
    }
    pageInfo { count }
  }
}`

type marketItem struct {
	UniqueKey     string `json:"uniqueKey"`
	Lltv          string `json:"lltv"`
	OracleAddress string `json:"oracleAddress"`
	IrmAddress    string `json:"irmAddress"`
	LoanAsset struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"loanAsset"`
	CollateralAsset struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"collateralAsset"`
	State struct {
		SupplyApy       float64 `json:"supplyApy"`
		BorrowApy       float64 `json:"borrowApy"`
		SupplyAssetsUsd float64 `json:"supplyAssetsUsd"`
		BorrowAssetsUsd float64 `json:"borrowAssetsUsd"`
	} `json:"state"`
}

// Markets выгружает весь каталог рынков сети, страница за страницей.
func (c *Client) Markets(ctx context.Context) ([]models.MarketListing, error) {
	var all []models.MarketListing
	now := time.Now()

	for skip := 0; ; skip += c.cfg.PageSize {
		var data struct {
			Markets struct {
				Items    []marketItem `json:"items"`
				PageInfo struct {
					Count int `json:"count"`
				} `json:"pageInfo"`
			} `json:"markets"`
		}
		vars := map[string]interface{}{
			"first":   c.cfg.PageSize,
			"skip":    skip,
			"chainId": []int64{c.cfg.ChainID},
		}
		if err := c.query(ctx, marketsQuery, vars, &data); err != nil {
			return nil, fmt.Errorf("fetch markets: %w", err)
		}

		for _, it := range data.Markets.Items {
			all = append(all, models.MarketListing{
				UniqueKey:        it.UniqueKey,
				LoanSymbol:       it.LoanAsset.Symbol,
				CollateralSymbol: it.CollateralAsset.Symbol,
				LoanAddress:      it.LoanAsset.Address,
				CollateralAddr:   it.CollateralAsset.Address,
				OracleAddr:       it.OracleAddress,
				IRMAddr:          it.IrmAddress,
				LLTV:             it.Lltv,
				SupplyAPY:        it.State.SupplyApy,
				BorrowAPY:        it.State.BorrowApy,
				SupplyAssetsUSD:  it.State.SupplyAssetsUsd,
				BorrowAssetsUSD:  it.State.BorrowAssetsUsd,
				UpdatedAt:        now,
			})
		}
		if len(data.Markets.Items) < c.cfg.PageSize {
			return all, nil
		}
	}
}

// ============================================================
// Каталог vault'ов
// ============================================================

const vaultsQuery = `
query Vaults($first: Int!, $skip: Int!, $chainId: [Int!]) {
  vaults(first: $first, skip: $skip, where: { chainId_in: $chainId }) {
    items {
      address
      name
      symbol
      asset { address symbol decimals }
      state { netApy totalAssetsUsd }
    }
    pageInfo { count }
  }
}`

type vaultItem struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	Asset   struct {
		Address  string `json:"address"`
		Symbol   string `json:"symbol"`
		Decimals int    `json:"decimals"`
	} `json:"asset"`
	State struct {
		NetApy         float64 `json:"netApy"`
		TotalAssetsUsd float64 `json:"totalAssetsUsd"`
	} `json:"state"`
}

// Vaults выгружает каталог MetaMorpho vault'ов сети.
func (c *Client) Vaults(ctx context.Context) ([]models.VaultListing, error) {
	var all []models.VaultListing
	now := time.Now()

	for skip := 0; ; skip += c.cfg.PageSize {
		var data struct {
			Vaults struct {
				Items []vaultItem `json:"items"`
			} `json:"vaults"`
		}
		vars := map[string]interface{}{
			"first":   c.cfg.PageSize,
			"skip":    skip,
			"chainId": []int64{c.cfg.ChainID},
		}
		if err := c.query(ctx, vaultsQuery, vars, &data); err != nil {
			return nil, fmt.Errorf("fetch vaults: %w", err)
		}

		for _, it := range data.Vaults.Items {
			all = append(all, models.VaultListing{
				Address:     it.Address,
				Name:        it.Name,
				Symbol:      it.Symbol,
				AssetSymbol: it.Asset.Symbol,
				AssetAddr:   it.Asset.Address,
				Decimals:    it.Asset.Decimals,
				NetAPY:      it.State.NetApy,
				TotalAssets: it.State.TotalAssetsUsd,
				ChainID:     c.cfg.ChainID,
				UpdatedAt:   now,
			})
		}
		if len(data.Vaults.Items) < c.cfg.PageSize {
			return all, nil
		}
	}
}
