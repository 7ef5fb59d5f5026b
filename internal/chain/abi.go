package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
)

// abi.go - подготовка calldata для Morpho Blue и ERC-20
//
// ABI парсятся один раз при инициализации пакета. Сигнатуры соответствуют
// задеплоенному контракту Morpho Blue; marketParams передаётся кортежем
// из пяти полей в том же порядке, что и при вычислении MarketID.

const erc20ABIJSON = `[
  {"name":"approve","type":"function","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"type":"bool"}]},
  {"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"type":"uint256"}]},
  {"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"type":"uint256"}]},
  {"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint8"}]}
]`

const morphoABIJSON = `[
  {"name":"supply","type":"function","inputs":[
    {"name":"marketParams","type":"tuple","components":[
      {"name":"loanToken","type":"address"},{"name":"collateralToken","type":"address"},
      {"name":"oracle","type":"address"},{"name":"irm","type":"address"},{"name":"lltv","type":"uint256"}]},
    {"name":"assets","type":"uint256"},{"name":"shares","type":"uint256"},
    {"name":"onBehalf","type":"address"},{"name":"data","type":"bytes"}],
   "outputs":[{"type":"uint256"},{"type":"uint256"}]},
  {"name":"supplyCollateral","type":"function","inputs":[
    {"name":"marketParams","type":"tuple","components":[
      {"name":"loanToken","type":"address"},{"name":"collateralToken","type":"address"},
      {"name":"oracle","type":"address"},{"name":"irm","type":"address"},{"name":"lltv","type":"uint256"}]},
    {"name":"assets","type":"uint256"},{"name":"onBehalf","type":"address"},{"name":"data","type":"bytes"}],
   "outputs":[]},
  {"name":"borrow","type":"function","inputs":[
    {"name":"marketParams","type":"tuple","components":[
      {"name":"loanToken","type":"address"},{"name":"collateralToken","type":"address"},
      {"name":"oracle","type":"address"},{"name":"irm","type":"address"},{"name":"lltv","type":"uint256"}]},
    {"name":"assets","type":"uint256"},{"name":"shares","type":"uint256"},
    {"name":"onBehalf","type":"address"},{"name":"receiver","type":"address"}],
   "outputs":[{"type":"uint256"},{"type":"uint256"}]},
  {"name":"repay","type":"function","inputs":[
    {"name":"marketParams","type":"tuple","components":[
      {"name":"loanToken","type":"address"},{"name":"collateralToken","type":"address"},
      {"name":"oracle","type":"address"},{"name":"irm","type":"address"},{"name":"lltv","type":"uint256"}]},
    {"name":"assets","type":"uint256"},{"name":"shares","type":"uint256"},
    {"name":"onBehalf","type":"address"},{"name":"data","type":"bytes"}],
   "outputs":[{"type":"uint256"},{"type":"uint256"}]},
  {"name":"withdraw","type":"function","inputs":[
    {"name":"marketParams","type":"tuple","components":[
      {"name":"loanToken","type":"address"},{"name":"collateralToken","type":"address"},
      {"name":"oracle","type":"address"},{"name":"irm","type":"address"},{"name":"lltv","type":"uint256"}]},
    {"name":"assets","type":"uint256"},{"name":"shares","type":"uint256"},
    {"name":"onBehalf","type":"address"},{"name":"receiver","type":"address"}],
   "outputs":[{"type":"uint256"},{"type":"uint256"}]},
  {"name":"withdrawCollateral","type":"function","inputs":[
    {"name":"marketParams","type":"tuple","components":[
      {"name":"loanToken","type":"address"},{"name":"collateralToken","type":"address"},
      {"name":"oracle","type":"address"},{"name":"irm","type":"address"},{"name":"lltv","type":"uint256"}]},
    {"name":"assets","type":"uint256"},{"name":"onBehalf","type":"address"},{"name":"receiver","type":"address"}],
   "outputs":[]},
  {"name":"market","type":"function","stateMutability":"view","inputs":[{"name":"id","type":"bytes32"}],
   "outputs":[{"name":"totalSupplyAssets","type":"uint128"},{"name":"totalSupplyShares","type":"uint128"},
              {"name":"totalBorrowAssets","type":"uint128"},{"name":"totalBorrowShares","type":"uint128"},
              {"name":"lastUpdate","type":"uint128"},{"name":"fee","type":"uint128"}]},
  {"name":"position","type":"function","stateMutability":"view","inputs":[{"name":"id","type":"bytes32"},{"name":"user","type":"address"}],
   "outputs":[{"name":"supplyShares","type":"uint256"},{"name":"borrowShares","type":"uint128"},{"name":"collateral","type":"uint128"}]}
]`

// Оракул рынка отдаёт цену collateral в loan token, масштаб 1e36
const oracleABIJSON = `[
  {"name":"price","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]}
]`

// IRM отдаёт текущую ставку займа (WAD в секунду) без изменения состояния
const irmABIJSON = `[
  {"name":"borrowRateView","type":"function","stateMutability":"view","inputs":[
    {"name":"marketParams","type":"tuple","components":[
      {"name":"loanToken","type":"address"},{"name":"collateralToken","type":"address"},
      {"name":"oracle","type":"address"},{"name":"irm","type":"address"},{"name":"lltv","type":"uint256"}]},
    {"name":"market","type":"tuple","components":[
      {"name":"totalSupplyAssets","type":"uint128"},{"name":"totalSupplyShares","type":"uint128"},
      {"name":"totalBorrowAssets","type":"uint128"},{"name":"totalBorrowShares","type":"uint128"},
      {"name":"lastUpdate","type":"uint128"},{"name":"fee","type":"uint128"}]}],
   "outputs":[{"type":"uint256"}]}
]`

var (
	erc20ABI  abi.ABI
	morphoABI abi.ABI
	oracleABI abi.ABI
	irmABI    abi.ABI
)

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("chain: bad erc20 abi: %v", err))
	}
	morphoABI, err = abi.JSON(strings.NewReader(morphoABIJSON))
	if err != nil {
		panic(fmt.Sprintf("chain: bad morpho abi: %v", err))
	}
	oracleABI, err = abi.JSON(strings.NewReader(oracleABIJSON))
	if err != nil {
		panic(fmt.Sprintf("chain: bad oracle abi: %v", err))
	}
	irmABI, err = abi.JSON(strings.NewReader(irmABIJSON))
	if err != nil {
		panic(fmt.Sprintf("chain: bad irm abi: %v", err))
	}
}

// abiMarketParams - представление MarketParams для abi-кодирования кортежа
type abiMarketParams struct {
	LoanToken       common.Address
	CollateralToken common.Address
	Oracle          common.Address
	Irm             common.Address
	Lltv            *big.Int
}

// abiMarket - представление учётного состояния рынка для borrowRateView
type abiMarket struct {
	TotalSupplyAssets *big.Int
	TotalSupplyShares *big.Int
	TotalBorrowAssets *big.Int
	TotalBorrowShares *big.Int
	LastUpdate        *big.Int
	Fee               *big.Int
}

func toABIParams(p models.MarketParams) abiMarketParams {
	lltv := p.LLTV
	if lltv == nil {
		lltv = new(big.Int)
	}
	return abiMarketParams{
		LoanToken:       p.LoanToken,
		CollateralToken: p.CollateralToken,
		Oracle:          p.Oracle,
		Irm:             p.IRM,
		Lltv:            lltv,
	}
}

// PackApprove собирает calldata approve(spender, amount).
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("approve", spender, amount)
}

// PackSupply собирает calldata supply. Ровно один из assets/shares
// должен быть ненулевым - второй передаётся нулём.
func PackSupply(p models.MarketParams, assets, shares *big.Int, onBehalf common.Address) ([]byte, error) {
	return morphoABI.Pack("supply", toABIParams(p), orZero(assets), orZero(shares), onBehalf, []byte{})
}

// PackSupplyCollateral собирает calldata supplyCollateral.
func PackSupplyCollateral(p models.MarketParams, assets *big.Int, onBehalf common.Address) ([]byte, error) {
	return morphoABI.Pack("supplyCollateral", toABIParams(p), orZero(assets), onBehalf, []byte{})
}

// PackBorrow собирает calldata borrow.
func PackBorrow(p models.MarketParams, assets, shares *big.Int, onBehalf, receiver common.Address) ([]byte, error) {
	return morphoABI.Pack("borrow", toABIParams(p), orZero(assets), orZero(shares), onBehalf, receiver)
}

// PackRepay собирает calldata repay.
//
// Для Max-погашения вызывается с assets=0 и shares=остаток долга:
// отправка по shares обходит второй независимый проход округления.
func PackRepay(p models.MarketParams, assets, shares *big.Int, onBehalf common.Address) ([]byte, error) {
	return morphoABI.Pack("repay", toABIParams(p), orZero(assets), orZero(shares), onBehalf, []byte{})
}

// PackWithdraw собирает calldata withdraw.
func PackWithdraw(p models.MarketParams, assets, shares *big.Int, onBehalf, receiver common.Address) ([]byte, error) {
	return morphoABI.Pack("withdraw", toABIParams(p), orZero(assets), orZero(shares), onBehalf, receiver)
}

// PackWithdrawCollateral собирает calldata withdrawCollateral.
func PackWithdrawCollateral(p models.MarketParams, assets *big.Int, onBehalf, receiver common.Address) ([]byte, error) {
	return morphoABI.Pack("withdrawCollateral", toABIParams(p), orZero(assets), onBehalf, receiver)
}

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}
