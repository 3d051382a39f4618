package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Method names understood by DefaultABI.
const (
	MethodTotalSupply = "totalSupply"
	MethodSales       = "sales"
	MethodBids        = "bids"
	MethodAwe         = "Awe"
	MethodSin         = "Sin"
	MethodAsh         = "Ash"
	MethodWoe         = "Woe"
	MethodJoy         = "Joy"
	MethodSump        = "sump"
	MethodWait        = "wait"
)

// monitorABIJSON merges the read-only surface of the ERC20 tokens, the clippers and the vow.
const monitorABIJSON = `[
{"inputs":[],"name":"totalSupply","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"uint256","name":"id","type":"uint256"}],"name":"sales","outputs":[{"internalType":"uint256","name":"pos","type":"uint256"},{"internalType":"uint256","name":"tab","type":"uint256"},{"internalType":"uint256","name":"lot","type":"uint256"},{"internalType":"address","name":"usr","type":"address"},{"internalType":"uint96","name":"tic","type":"uint96"},{"internalType":"uint256","name":"top","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"uint256","name":"id","type":"uint256"}],"name":"bids","outputs":[{"internalType":"uint256","name":"bid","type":"uint256"},{"internalType":"uint256","name":"lot","type":"uint256"},{"internalType":"address","name":"guy","type":"address"},{"internalType":"uint48","name":"tic","type":"uint48"},{"internalType":"uint48","name":"end","type":"uint48"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"Awe","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"Sin","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"Ash","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"Woe","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"Joy","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"sump","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"wait","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// DefaultABI is the parsed monitor ABI.
var DefaultABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(monitorABIJSON))
	if err != nil {
		panic("failed to parse monitor ABI: " + err.Error())
	}
	DefaultABI = parsed
}
