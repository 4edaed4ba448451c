package config

import (
	"encoding/hex"
	"fmt"
)

// ArgSchema describes where a swap function's arguments sit in its
// invocation vector. Nil index means the function does not carry that
// argument.
type ArgSchema struct {
	Sender       *int `yaml:"sender"`
	Recipient    *int `yaml:"recipient"`
	Deadline     *int `yaml:"deadline"`
	AmountIn     *int `yaml:"amount_in"`
	AmountOutMin *int `yaml:"amount_out_min"`
	AmountOut    *int `yaml:"amount_out"`
	AmountInMax  *int `yaml:"amount_in_max"`
}

// ExactIn reports whether the function fixes the input amount
// (amount_in + amount_out_min) rather than the output.
func (s ArgSchema) ExactIn() bool { return s.AmountIn != nil }

// RouterConfig whitelists one swap router contract and the functions the
// rewriter knows how to rescale.
type RouterConfig struct {
	Name string `yaml:"name"`
	// ContractID is the hex-encoded 32-byte contract hash.
	ContractID string               `yaml:"contract_id"`
	Functions  map[string]ArgSchema `yaml:"functions"`
}

// Validate checks the contract hash and that every function names at
// least one amount argument.
func (r RouterConfig) Validate() error {
	raw, err := hex.DecodeString(r.ContractID)
	if err != nil || len(raw) != 32 {
		return fmt.Errorf("router %s: contract_id must be 32 hex bytes", r.Name)
	}
	if len(r.Functions) == 0 {
		return fmt.Errorf("router %s: no functions whitelisted", r.Name)
	}
	for fn, schema := range r.Functions {
		if schema.AmountIn == nil && schema.AmountOut == nil {
			return fmt.Errorf("router %s: function %s names no amount argument", r.Name, fn)
		}
		if schema.AmountIn != nil && schema.AmountOutMin == nil {
			return fmt.Errorf("router %s: function %s has amount_in without amount_out_min", r.Name, fn)
		}
		if schema.AmountOut != nil && schema.AmountInMax == nil {
			return fmt.Errorf("router %s: function %s has amount_out without amount_in_max", r.Name, fn)
		}
	}
	return nil
}

// RouterTable indexes whitelisted functions by contract hash then
// function name.
type RouterTable map[string]map[string]ArgSchema

// BuildRouterTable compiles router configs into a lookup table.
func BuildRouterTable(routers []RouterConfig) RouterTable {
	table := make(RouterTable, len(routers))
	for _, r := range routers {
		fns := make(map[string]ArgSchema, len(r.Functions))
		for name, schema := range r.Functions {
			fns[name] = schema
		}
		table[r.ContractID] = fns
	}
	return table
}

// Lookup returns the schema for a contract/function pair.
func (t RouterTable) Lookup(contractID, function string) (ArgSchema, bool) {
	fns, ok := t[contractID]
	if !ok {
		return ArgSchema{}, false
	}
	schema, ok := fns[function]
	return schema, ok
}

func idx(i int) *int { return &i }

// DefaultRouters returns the built-in whitelist of mainnet swap routers.
func DefaultRouters() []RouterConfig {
	return []RouterConfig{
		{
			Name:       "aqua",
			ContractID: "6033b4250e704e314fb064973d185db922cae0bd272ba5bff19aac570f12ac2f",
			Functions: map[string]ArgSchema{
				"swap_chained": {
					Sender:       idx(0),
					Recipient:    idx(0),
					AmountIn:     idx(3),
					AmountOutMin: idx(4),
				},
			},
		},
		{
			Name:       "soroswap",
			ContractID: "0dd5c710ea6a4a23b32207fd130eadf9c9ce899f4308e93e4ffe53fbaf108a04",
			Functions: map[string]ArgSchema{
				"swap_exact_tokens_for_tokens": {
					AmountIn:     idx(0),
					AmountOutMin: idx(1),
					Recipient:    idx(3),
					Deadline:     idx(4),
				},
				"swap_tokens_for_exact_tokens": {
					AmountOut:   idx(0),
					AmountInMax: idx(1),
					Recipient:   idx(3),
					Deadline:    idx(4),
				},
			},
		},
		{
			Name:       "aggregator",
			ContractID: "4a07472d5713212713de5762c3b0223883b918c7ae2c4f64e7c0af65992a8aff",
			Functions: map[string]ArgSchema{
				"swap_exact_tokens_for_tokens": {
					AmountIn:     idx(2),
					AmountOutMin: idx(3),
					Recipient:    idx(5),
					Deadline:     idx(6),
				},
				"swap_tokens_for_exact_tokens": {
					AmountOut:   idx(2),
					AmountInMax: idx(3),
					Recipient:   idx(5),
					Deadline:    idx(6),
				},
			},
		},
	}
}
