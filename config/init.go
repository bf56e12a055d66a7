package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	yaml "gopkg.in/yaml.v2"
)

func readFile(cfg *Configuration, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("cannot decode %s: %w", path, err)
	}
	return nil
}

func readEnv(cfg *Configuration) error {
	return envconfig.Process("", cfg)
}

// Load reads the yaml file, overlays environment variables and fills defaults.
// The result is immutable for the run.
func Load(path string) (*Configuration, error) {
	var cfg Configuration
	if path != "" {
		if err := readFile(&cfg, path); err != nil {
			return nil, err
		}
	}
	if err := readEnv(&cfg); err != nil {
		return nil, fmt.Errorf("cannot read environment: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Configuration) Validate() error {
	var errs []error
	if len(c.Casper.RPCList) == 0 {
		errs = append(errs, errors.New("casper.rpc_list is empty"))
	}
	if c.Casper.VaultHash == "" {
		errs = append(errs, errors.New("casper.vault_hash is required"))
	}
	if c.Casper.PrivateKey == "" {
		errs = append(errs, errors.New("casper.private_key is required"))
	}
	if len(c.EVM.RPCList) == 0 {
		errs = append(errs, errors.New("evm.rpc_list is empty"))
	}
	if c.EVM.ChainID <= 0 {
		errs = append(errs, errors.New("evm.chain_id must be positive"))
	}
	if c.EVM.TokenAddress == "" || c.EVM.VerifierAddr == "" {
		errs = append(errs, errors.New("evm.token_address and evm.verifier_address are required"))
	}
	if c.EVM.PrivateKey == "" {
		errs = append(errs, errors.New("evm.private_key is required"))
	}
	if c.Executor.PollAttempts < 0 || c.Executor.BroadcastRetries < 0 {
		errs = append(errs, errors.New("executor retry counts cannot be negative"))
	}
	return errors.Join(errs...)
}
