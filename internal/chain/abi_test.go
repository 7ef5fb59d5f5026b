package chain

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
)

func testParams() models.MarketParams {
	return models.MarketParams{
		LoanToken:       common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		CollateralToken: common.HexToAddress("0x00000000000000000000000000000000000000bb"),
		Oracle:          common.HexToAddress("0x00000000000000000000000000000000000000cc"),
		IRM:             common.HexToAddress("0x00000000000000000000000000000000000000dd"),
		LLTV:            big.NewInt(860000000000000000), // 86%
	}
}

// TestPackApprove_Selector: approve(address,uint256) - канонический селектор
func TestPackApprove_Selector(t *testing.T) {
	data, err := PackApprove(common.HexToAddress("0x01"), big.NewInt(5))
	if err != nil {
		t.Fatal(err)
	}
	wantSelector := []byte{0x09, 0x5e, 0xa7, 0xb3}
	if !bytes.Equal(data[:4], wantSelector) {
		t.Errorf("selector = %x, want %x", data[:4], wantSelector)
	}
	// amount - последнее 32-байтовое слово
	amount := new(big.Int).SetBytes(data[len(data)-32:])
	if amount.Int64() != 5 {
		t.Errorf("amount word = %s, want 5", amount)
	}
}

// TestPackRepay_SharesMode: при отправке по shares слово assets равно
// нулю, слово shares - переданному значению
func TestPackRepay_SharesMode(t *testing.T) {
	shares := big.NewInt(123456789)
	data, err := PackRepay(testParams(), nil, shares, common.HexToAddress("0x02"))
	if err != nil {
		t.Fatal(err)
	}

	// layout: селектор(4) + кортеж params(5 слов) + assets + shares + ...
	assetsWord := new(big.Int).SetBytes(data[4+5*32 : 4+6*32])
	sharesWord := new(big.Int).SetBytes(data[4+6*32 : 4+7*32])
	if assetsWord.Sign() != 0 {
		t.Errorf("assets word = %s, want 0", assetsWord)
	}
	if sharesWord.Cmp(shares) != 0 {
		t.Errorf("shares word = %s, want %s", sharesWord, shares)
	}
}

// TestPackSupply_ParamsLayout: кортеж marketParams кодируется пятью
// словами в порядке вычисления MarketID
func TestPackSupply_ParamsLayout(t *testing.T) {
	p := testParams()
	data, err := PackSupply(p, big.NewInt(1), nil, common.HexToAddress("0x03"))
	if err != nil {
		t.Fatal(err)
	}

	words := []common.Address{p.LoanToken, p.CollateralToken, p.Oracle, p.IRM}
	for i, want := range words {
		got := common.BytesToAddress(data[4+i*32 : 4+(i+1)*32])
		if got != want {
			t.Errorf("слово %d = %s, want %s", i, got.Hex(), want.Hex())
		}
	}
	lltv := new(big.Int).SetBytes(data[4+4*32 : 4+5*32])
	if lltv.Cmp(p.LLTV) != 0 {
		t.Errorf("lltv = %s, want %s", lltv, p.LLTV)
	}
}

// TestMarketID_Deterministic: ID стабилен и чувствителен к каждому полю
func TestMarketID_Deterministic(t *testing.T) {
	p := testParams()
	if p.ID() != p.ID() {
		t.Fatal("ID недетерминирован")
	}

	q := testParams()
	q.LLTV = big.NewInt(945000000000000000)
	if p.ID() == q.ID() {
		t.Error("изменение LLTV не изменило ID")
	}

	q = testParams()
	q.Oracle = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	if p.ID() == q.ID() {
		t.Error("изменение оракула не изменило ID")
	}
}
