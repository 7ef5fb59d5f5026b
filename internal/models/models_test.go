package models

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ============ MarketParams Tests ============

func testParams() MarketParams {
	return MarketParams{
		LoanToken:       common.HexToAddress("0x0000000000000000000000000000000000000001"),
		CollateralToken: common.HexToAddress("0x0000000000000000000000000000000000000002"),
		Oracle:          common.HexToAddress("0x0000000000000000000000000000000000000003"),
		IRM:             common.HexToAddress("0x0000000000000000000000000000000000000004"),
		LLTV:            big.NewInt(860000000000000000),
	}
}

func TestMarketParams_IDDeterministic(t *testing.T) {
	params := testParams()

	first := params.ID()
	second := params.ID()

	if first != second {
		t.Errorf("одинаковые параметры должны давать одинаковый ID: %s != %s", first.Hex(), second.Hex())
	}

	if first == (MarketID{}) {
		t.Error("ID не должен быть нулевым хэшем")
	}
}

func TestMarketParams_IDSensitiveToLLTV(t *testing.T) {
	a := testParams()
	b := testParams()
	b.LLTV = big.NewInt(945000000000000000)

	if a.ID() == b.ID() {
		t.Error("рынки с разным LLTV должны иметь разные ID")
	}
}

func TestMarketParams_IDNilLLTV(t *testing.T) {
	params := testParams()
	params.LLTV = nil

	zero := testParams()
	zero.LLTV = big.NewInt(0)

	// nil LLTV кодируется как нулевое слово
	if params.ID() != zero.ID() {
		t.Error("nil LLTV должен кодироваться как ноль")
	}
}

// ============ MarketListing Tests ============

func TestMarketListing_ToParams(t *testing.T) {
	listing := MarketListing{
		UniqueKey:      "0xaaaa",
		LoanAddress:    "0x0000000000000000000000000000000000000001",
		CollateralAddr: "0x0000000000000000000000000000000000000002",
		OracleAddr:     "0x0000000000000000000000000000000000000003",
		IRMAddr:        "0x0000000000000000000000000000000000000004",
		LLTV:           "860000000000000000",
	}

	params, err := listing.ToParams()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if params.LoanToken != common.HexToAddress(listing.LoanAddress) {
		t.Errorf("loan token: получен %s", params.LoanToken.Hex())
	}

	if params.LLTV.String() != listing.LLTV {
		t.Errorf("LLTV: ожидался %s, получен %s", listing.LLTV, params.LLTV.String())
	}
}

func TestMarketListing_ToParamsBadLLTV(t *testing.T) {
	listing := MarketListing{UniqueKey: "0xaaaa", LLTV: "0.86"}

	if _, err := listing.ToParams(); err == nil {
		t.Error("не-десятичный LLTV должен давать ошибку")
	}
}

// ============ MarketState Tests ============

func TestMarketState_CloneIsDeep(t *testing.T) {
	original := &MarketState{
		Params:            testParams(),
		TotalSupplyAssets: big.NewInt(1000),
		TotalBorrowAssets: big.NewInt(500),
		Fee:               big.NewInt(0),
		Price:             big.NewInt(1),
		LastUpdate:        1700000000,
	}

	clone := original.Clone()
	clone.TotalSupplyAssets.SetInt64(9999)
	clone.Params.LLTV.SetInt64(1)

	if original.TotalSupplyAssets.Int64() != 1000 {
		t.Error("мутация клона не должна затрагивать оригинал")
	}

	if original.Params.LLTV.Int64() != 860000000000000000 {
		t.Error("LLTV оригинала не должен меняться через клон")
	}
}

func TestMarketState_CloneNil(t *testing.T) {
	var state *MarketState
	if state.Clone() != nil {
		t.Error("Clone от nil должен возвращать nil")
	}
}

// ============ Position Tests ============

func TestPosition_CloneIsDeep(t *testing.T) {
	original := &Position{
		User:         common.HexToAddress("0xc0ffe"),
		SupplyShares: big.NewInt(100),
		BorrowShares: big.NewInt(50),
		Collateral:   big.NewInt(25),
	}

	clone := original.Clone()
	clone.BorrowShares.SetInt64(0)

	if original.BorrowShares.Int64() != 50 {
		t.Error("мутация клона не должна затрагивать оригинал")
	}
}

// ============ Action Tests ============

func TestAction_Valid(t *testing.T) {
	tests := []struct {
		action Action
		want   bool
	}{
		{ActionSupply, true},
		{ActionSupplyCollateral, true},
		{ActionBorrow, true},
		{ActionRepay, true},
		{ActionWithdraw, true},
		{ActionWithdrawCollateral, true},
		{Action("stake"), false},
		{Action(""), false},
	}

	for _, tt := range tests {
		if got := tt.action.Valid(); got != tt.want {
			t.Errorf("Valid(%q) = %v, ожидалось %v", tt.action, got, tt.want)
		}
	}
}

func TestAction_NeedsApproval(t *testing.T) {
	tests := []struct {
		action Action
		want   bool
	}{
		{ActionSupply, true},
		{ActionSupplyCollateral, true},
		{ActionRepay, true},
		{ActionBorrow, false},
		{ActionWithdraw, false},
		{ActionWithdrawCollateral, false},
	}

	for _, tt := range tests {
		if got := tt.action.NeedsApproval(); got != tt.want {
			t.Errorf("NeedsApproval(%q) = %v, ожидалось %v", tt.action, got, tt.want)
		}
	}
}

// ============ TransactionLifecycle Tests ============

func TestTransactionLifecycle_IsCompleted(t *testing.T) {
	tests := []struct {
		phase string
		want  bool
	}{
		{PhaseIdle, false},
		{PhaseApproving, false},
		{PhaseActing, false},
		{PhaseConfirmed, true},
		{PhaseFailed, true},
	}

	for _, tt := range tests {
		lc := TransactionLifecycle{Phase: tt.phase}
		if got := lc.IsCompleted(); got != tt.want {
			t.Errorf("IsCompleted(%s) = %v, ожидалось %v", tt.phase, got, tt.want)
		}
	}
}

func TestTxError_Error(t *testing.T) {
	err := &TxError{Step: StepApprove, Message: "insufficient allowance"}
	if err.Error() != "approve: insufficient allowance" {
		t.Errorf("неожиданный текст ошибки: %q", err.Error())
	}

	var nilErr *TxError
	if nilErr.Error() != "" {
		t.Error("nil ошибка должна давать пустую строку")
	}
}

// ============ WalletRecord Tests ============

func TestWalletRecord_JSONHidesKey(t *testing.T) {
	record := WalletRecord{
		ID:           1,
		Address:      "0x00000000000000000000000000000000000c0ffe",
		Label:        "main",
		EncryptedKey: "super_secret_ciphertext",
		IsDefault:    true,
		CreatedAt:    time.Now(),
	}

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("ошибка сериализации: %v", err)
	}

	jsonStr := string(data)

	// Зашифрованный ключ не должен попадать в JSON (тег json:"-")
	if strings.Contains(jsonStr, "super_secret_ciphertext") {
		t.Error("зашифрованный ключ не должен быть в JSON")
	}

	for _, field := range []string{"address", "label", "is_default"} {
		if !strings.Contains(jsonStr, field) {
			t.Errorf("публичное поле %q должно быть в JSON", field)
		}
	}
}

// ============ TxRecord Tests ============

func TestTxRecord_JSONOmitsEmptyError(t *testing.T) {
	record := TxRecord{
		ID:        1,
		User:      "0x00000000000000000000000000000000000c0ffe",
		MarketKey: "0xaaaa",
		Action:    ActionSupply,
		Assets:    "1000000000000000000",
		Phase:     PhaseConfirmed,
	}

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("ошибка сериализации: %v", err)
	}

	if strings.Contains(string(data), "error_message") {
		t.Error("пустая ошибка не должна попадать в JSON (omitempty)")
	}
}
