package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ABI surface of the agent's smart-contract account: one state-changing
// creation method and the UpdateContract event it eventually emits.
const accountABIJSON = `[
	{
		"type": "function",
		"name": "createContractByAccountAddress",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "agentAddress", "type": "address"},
			{"name": "sellerAddress", "type": "address"},
			{"name": "buyerAddress", "type": "address"},
			{"name": "contractType", "type": "uint8"}
		],
		"outputs": []
	},
	{
		"type": "event",
		"name": "UpdateContract",
		"anonymous": false,
		"inputs": [
			{"name": "contractIndex", "type": "uint256", "indexed": false}
		]
	}
]`

var accountABI = mustParseABI(accountABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("ledger: invalid account abi: " + err.Error())
	}
	return parsed
}
