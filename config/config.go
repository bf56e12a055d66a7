package config

import "time"

type Configuration struct {
	// Server config
	Server struct {
		Listen    string `yaml:"listen" envconfig:"SERVER_LISTEN"`
		RedisHost string `yaml:"redis_host" envconfig:"REDIS_HOST"` // empty keeps the ledger in memory
		RedisPort int    `yaml:"redis_port" envconfig:"REDIS_PORT"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level" envconfig:"LOG_LEVEL"`
		JSON  bool   `yaml:"json" envconfig:"LOG_JSON"`
	} `yaml:"log"`
	// Casper-related config
	Casper struct {
		RPCList          []string      `yaml:"rpc_list" envconfig:"CASPER_RPC_LIST"`
		ChainName        string        `yaml:"chain_name" envconfig:"CASPER_CHAIN_NAME"`
		VaultHash        string        `yaml:"vault_hash" envconfig:"CASPER_VAULT_HASH"` // contract hash, hex without prefix
		PollInterval     time.Duration `yaml:"poll_interval" envconfig:"CASPER_POLL_INTERVAL"`
		Confirmations    uint64        `yaml:"confirmations" envconfig:"CASPER_CONFIRMATIONS"`
		BlockBatch       uint64        `yaml:"block_batch" envconfig:"CASPER_BLOCK_BATCH"`
		StartBlock       uint64        `yaml:"start_block" envconfig:"CASPER_START_BLOCK"`
		PaymentMotes     uint64        `yaml:"payment_motes" envconfig:"CASPER_PAYMENT_MOTES"`
		// important private stuff, ed25519 seed hex (32 bytes)
		PrivateKey string `yaml:"private_key" envconfig:"CASPER_PRIVATE_KEY"`
	} `yaml:"casper"`
	// EVM-related config
	EVM struct {
		RPCList       []string      `yaml:"rpc_list" envconfig:"EVM_RPC_LIST"`
		ChainID       int64         `yaml:"chain_id" envconfig:"EVM_CHAIN_ID"`
		TokenAddress  string        `yaml:"token_address" envconfig:"EVM_TOKEN_ADDRESS"`       // emits BridgeBurn
		VerifierAddr  string        `yaml:"verifier_address" envconfig:"EVM_VERIFIER_ADDRESS"` // accepts mint
		PollInterval  time.Duration `yaml:"poll_interval" envconfig:"EVM_POLL_INTERVAL"`
		Confirmations uint64        `yaml:"confirmations" envconfig:"EVM_CONFIRMATIONS"`
		BlockBatch    uint64        `yaml:"block_batch" envconfig:"EVM_BLOCK_BATCH"`
		StartBlock    uint64        `yaml:"start_block" envconfig:"EVM_START_BLOCK"`
		GasLimit      uint64        `yaml:"gas_limit" envconfig:"EVM_GAS_LIMIT"`
		// important private stuff, secp256k1 hex
		PrivateKey string `yaml:"private_key" envconfig:"EVM_PRIVATE_KEY"`
	} `yaml:"evm"`
	// attestation keys, fall back to the account keys above when empty
	Signer struct {
		Secp256k1Key string `yaml:"secp256k1_key" envconfig:"SIGNER_SECP256K1_KEY"`
		Ed25519Seed  string `yaml:"ed25519_seed" envconfig:"SIGNER_ED25519_SEED"`
	} `yaml:"signer"`
	Executor struct {
		BroadcastRetries int           `yaml:"broadcast_retries" envconfig:"EXECUTOR_BROADCAST_RETRIES"`
		PollInterval     time.Duration `yaml:"poll_interval" envconfig:"EXECUTOR_POLL_INTERVAL"`
		PollAttempts     int           `yaml:"poll_attempts" envconfig:"EXECUTOR_POLL_ATTEMPTS"`
	} `yaml:"executor"`
	Decimals struct {
		Casper int `yaml:"casper" envconfig:"DECIMALS_CASPER"`
		EVM    int `yaml:"evm" envconfig:"DECIMALS_EVM"`
	} `yaml:"decimals"`
}

// lock entry point on the Casper vault
const CASPER_LOCK_ENTRYPOINT = "lock_cspr"

// release entry point on the Casper vault
const CASPER_RELEASE_ENTRYPOINT = "release_cspr"

// burn event emitted by the wrapped token on EVM
const EVM_BURN_EVENT = "BridgeBurn(address,uint256,string,string)"

// maximum number of EVM RPC retries
const EVM_RETRIES = 3

// destination representable range
const (
	EVM_AMOUNT_BITS    = 256
	CASPER_AMOUNT_BITS = 512
)

func (c *Configuration) setDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.RedisPort == 0 {
		c.Server.RedisPort = 6379
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Casper.ChainName == "" {
		c.Casper.ChainName = "casper"
	}
	if c.Casper.PollInterval == 0 {
		// Casper block time is ~16 sec
		c.Casper.PollInterval = 15 * time.Second
	}
	if c.Casper.BlockBatch == 0 {
		c.Casper.BlockBatch = 50
	}
	if c.Casper.PaymentMotes == 0 {
		// 5 CSPR
		c.Casper.PaymentMotes = 5_000_000_000
	}
	if c.EVM.PollInterval == 0 {
		c.EVM.PollInterval = 10 * time.Second
	}
	if c.EVM.BlockBatch == 0 {
		c.EVM.BlockBatch = 512
	}
	if c.EVM.GasLimit == 0 {
		c.EVM.GasLimit = 300000
	}
	if c.Executor.BroadcastRetries == 0 {
		c.Executor.BroadcastRetries = EVM_RETRIES
	}
	if c.Executor.PollInterval == 0 {
		c.Executor.PollInterval = 5 * time.Second
	}
	if c.Executor.PollAttempts == 0 {
		c.Executor.PollAttempts = 24
	}
	if c.Decimals.Casper == 0 {
		c.Decimals.Casper = 9
	}
	if c.Decimals.EVM == 0 {
		c.Decimals.EVM = 18
	}
	if c.Signer.Secp256k1Key == "" {
		c.Signer.Secp256k1Key = c.EVM.PrivateKey
	}
	if c.Signer.Ed25519Seed == "" {
		c.Signer.Ed25519Seed = c.Casper.PrivateKey
	}
}
