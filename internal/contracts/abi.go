package contracts

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABIJSON = `[
  {"inputs": [{"internalType": "address", "name": "owner", "type": "address"}, {"internalType": "address", "name": "spender", "type": "address"}], "name": "allowance", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "spender", "type": "address"}, {"internalType": "uint256", "name": "amount", "type": "uint256"}], "name": "approve", "outputs": [{"internalType": "bool", "name": "", "type": "bool"}], "stateMutability": "nonpayable", "type": "function"}
]`

const liquidityPoolABIJSON = `[
  {"inputs": [{"internalType": "address", "name": "tokenAddress", "type": "address"}, {"internalType": "uint256", "name": "amount", "type": "uint256"}], "name": "addTokenLiquidity", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [], "name": "addNativeLiquidity", "outputs": [], "stateMutability": "payable", "type": "function"},
  {"inputs": [{"internalType": "uint256", "name": "nftId", "type": "uint256"}, {"internalType": "uint256", "name": "amount", "type": "uint256"}], "name": "increaseTokenLiquidity", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "uint256", "name": "nftId", "type": "uint256"}], "name": "increaseNativeLiquidity", "outputs": [], "stateMutability": "payable", "type": "function"},
  {"inputs": [{"internalType": "uint256", "name": "nftId", "type": "uint256"}, {"internalType": "uint256", "name": "amount", "type": "uint256"}], "name": "removeLiquidity", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "uint256", "name": "nftId", "type": "uint256"}], "name": "claimFee", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "tokenAddress", "type": "address"}], "name": "totalReserve", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "uint256", "name": "shares", "type": "uint256"}, {"internalType": "address", "name": "tokenAddress", "type": "address"}], "name": "sharesToTokenAmount", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "tokenAddress", "type": "address"}], "name": "totalLiquidity", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "BASE_DIVISOR", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const lpTokenABIJSON = `[
  {"inputs": [{"internalType": "uint256", "name": "tokenId", "type": "uint256"}], "name": "tokenMetadata", "outputs": [{"internalType": "address", "name": "token", "type": "address"}, {"internalType": "uint256", "name": "suppliedLiquidity", "type": "uint256"}, {"internalType": "uint256", "name": "shares", "type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const whitelistManagerABIJSON = `[
  {"inputs": [{"internalType": "address", "name": "tokenAddress", "type": "address"}], "name": "perTokenTotalCap", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "tokenAddress", "type": "address"}], "name": "perTokenWalletCap", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "tokenAddress", "type": "address"}, {"internalType": "address", "name": "lp", "type": "address"}], "name": "totalLiquidityByLp", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const liquidityFarmingABIJSON = `[
  {"inputs": [{"internalType": "uint256", "name": "nftId", "type": "uint256"}], "name": "pendingToken", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "baseToken", "type": "address"}], "name": "getRewardRatePerSecond", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "baseToken", "type": "address"}], "name": "rewardTokens", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "baseToken", "type": "address"}], "name": "totalSharesStaked", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

var (
	parsedABIs struct {
		erc20     abi.ABI
		pool      abi.ABI
		lpToken   abi.ABI
		whitelist abi.ABI
		farming   abi.ABI
	}
	abiOnce sync.Once
	abiErr  error
)

func loadABIs() error {
	abiOnce.Do(func() {
		for _, spec := range []struct {
			json string
			dst  *abi.ABI
		}{
			{erc20ABIJSON, &parsedABIs.erc20},
			{liquidityPoolABIJSON, &parsedABIs.pool},
			{lpTokenABIJSON, &parsedABIs.lpToken},
			{whitelistManagerABIJSON, &parsedABIs.whitelist},
			{liquidityFarmingABIJSON, &parsedABIs.farming},
		} {
			parsed, err := abi.JSON(strings.NewReader(spec.json))
			if err != nil {
				abiErr = err
				return
			}
			*spec.dst = parsed
		}
	})
	return abiErr
}
