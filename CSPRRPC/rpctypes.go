package CSPRRPC

import (
	"encoding/json"
	"errors"
)

type jsonBlock struct {
	Hash   string `json:"hash"`
	Header struct {
		Height uint64 `json:"height"`
	} `json:"header"`
	Body struct {
		DeployHashes []string `json:"deploy_hashes"`
	} `json:"body"`
}

type getBlockResult struct {
	Block *jsonBlock `json:"block"`
}

type executionResult struct {
	BlockHash string `json:"block_hash"`
	Result    struct {
		Success *json.RawMessage `json:"Success,omitempty"`
		Failure *struct {
			ErrorMessage string `json:"error_message"`
		} `json:"Failure,omitempty"`
	} `json:"result"`
}

type getDeployResult struct {
	Deploy           json.RawMessage   `json:"deploy"`
	ExecutionResults []executionResult `json:"execution_results"`
}

type putDeployResult struct {
	DeployHash string `json:"deploy_hash"`
}

// Deploy is the JSON form accepted by account_put_deploy and returned by info_get_deploy
type Deploy struct {
	Hash      string         `json:"hash"`
	Header    DeployHeader   `json:"header"`
	Payment   ExecutableItem `json:"payment"`
	Session   ExecutableItem `json:"session"`
	Approvals []Approval     `json:"approvals"`
}

type DeployHeader struct {
	Account      string   `json:"account"`
	Timestamp    string   `json:"timestamp"`
	TTL          string   `json:"ttl"`
	GasPrice     uint64   `json:"gas_price"`
	BodyHash     string   `json:"body_hash"`
	Dependencies []string `json:"dependencies"`
	ChainName    string   `json:"chain_name"`
}

type ExecutableItem struct {
	ModuleBytes          *ModuleBytes          `json:"ModuleBytes,omitempty"`
	StoredContractByHash *StoredContractByHash `json:"StoredContractByHash,omitempty"`
}

type ModuleBytes struct {
	ModuleBytes string     `json:"module_bytes"`
	Args        []NamedArg `json:"args"`
}

type StoredContractByHash struct {
	Hash       string     `json:"hash"`
	EntryPoint string     `json:"entry_point"`
	Args       []NamedArg `json:"args"`
}

type Approval struct {
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
}

type CLValue struct {
	CLType json.RawMessage `json:"cl_type"`
	Bytes  string          `json:"bytes"`
	Parsed json.RawMessage `json:"parsed,omitempty"`
}

// NamedArg travels as a two element array ["name", {cl value}]
type NamedArg struct {
	Name  string
	Value CLValue
}

func (a NamedArg) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{a.Name, a.Value})
}

func (a *NamedArg) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return errors.New("named arg must be a [name, value] pair")
	}
	if err := json.Unmarshal(pair[0], &a.Name); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &a.Value)
}

func findArg(args []NamedArg, name string) (CLValue, bool) {
	for _, a := range args {
		if a.Name == name {
			return a.Value, true
		}
	}
	return CLValue{}, false
}
