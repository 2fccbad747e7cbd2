package commands

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/openkeeper/openkeeper/pkg/config"
	"github.com/openkeeper/openkeeper/pkg/policy"
	"github.com/openkeeper/openkeeper/pkg/protocol"
	"github.com/spf13/cobra"
)

func newRegisterCommand() *cobra.Command {
	var (
		manifestFile string
		payloadHex   string
		repeatable   bool
	)

	cmd := &cobra.Command{
		Use:   "register [type value target]",
		Short: "Register a condition",
		Long: `Register a trigger condition bound to a callback target.

Trigger types:
  block_height       fires at a block number
  timestamp          fires at a unix time
  price_above        fires when the oracle price exceeds the value
  price_below        fires when the oracle price drops below the value
  balance_threshold  fires when a balance reaches the value

With -f, conditions are read from a CUE manifest instead of arguments.`,
		Example: `  # Register a one-shot block trigger
  keeper register block_height 5000 0xcallback --as alice

  # Register a repeatable price trigger with call data
  keeper register price_above 2000 0xfeed --repeatable --payload 0xdeadbeef

  # Register every condition in a manifest
  keeper register -f conditions.cue --as alice`,
		Args: cobra.RangeArgs(0, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if manifestFile != "" {
				if len(args) != 0 {
					return fmt.Errorf("-f and positional arguments are mutually exclusive")
				}
				return registerFromManifest(ctx, a, manifestFile)
			}

			if len(args) != 3 {
				return fmt.Errorf("expected: register <type> <value> <target>")
			}

			value, err := parseAmount(args[1])
			if err != nil {
				return err
			}

			var payload []byte
			if payloadHex != "" {
				payload, err = hex.DecodeString(strings.TrimPrefix(payloadHex, "0x"))
				if err != nil {
					return fmt.Errorf("invalid payload hex: %w", err)
				}
			}

			return registerOne(ctx, a, protocol.TriggerType(args[0]), value, protocol.Target{
				Address: args[2],
				Payload: payload,
			}, repeatable)
		},
	}

	cmd.Flags().StringVarP(&manifestFile, "file", "f", "", "CUE condition manifest")
	cmd.Flags().StringVar(&payloadHex, "payload", "", "hex-encoded callback payload")
	cmd.Flags().BoolVar(&repeatable, "repeatable", false, "re-arm the condition after each execution")

	return cmd
}

func registerOne(ctx context.Context, a *app, typ protocol.TriggerType, value uint64, target protocol.Target, repeatable bool) error {
	registrant := a.caller()

	if err := a.checkPolicy(ctx, &policy.Input{
		Condition: &policy.ConditionInput{
			Type:       string(typ),
			Value:      value,
			Target:     target.Address,
			Repeatable: repeatable,
		},
		Registrant: a.registrantInput(registrant),
		Context: &policy.Context{
			Operation: "register",
			Block:     a.clock.Head().Number,
			Timestamp: a.clock.Head().Time,
		},
	}); err != nil {
		return err
	}

	c, err := a.engine.Register(ctx, registrant, typ, value, target, repeatable)
	if err != nil {
		return err
	}

	return output(c, func() {
		fmt.Printf("Registered condition %d (%s, value %d, target %s)\n", c.ID, c.Type, c.Value, c.Target.Address)
	})
}

func registerFromManifest(ctx context.Context, a *app, path string) error {
	manifests, err := config.NewManifestParser().ParseFile(path)
	if err != nil {
		return err
	}

	var registered []*protocol.Condition
	for i, m := range manifests {
		payload, err := m.PayloadBytes()
		if err != nil {
			return fmt.Errorf("conditions[%d]: %w", i, err)
		}

		registrant := a.caller()
		if err := a.checkPolicy(ctx, &policy.Input{
			Condition: &policy.ConditionInput{
				Type:       m.Type,
				Value:      m.Value,
				Target:     m.Target,
				Repeatable: m.Repeatable,
			},
			Registrant: a.registrantInput(registrant),
			Context: &policy.Context{
				Operation: "register",
				Block:     a.clock.Head().Number,
				Timestamp: a.clock.Head().Time,
			},
		}); err != nil {
			return fmt.Errorf("conditions[%d]: %w", i, err)
		}

		c, err := a.engine.Register(ctx, registrant, m.TriggerType(), m.Value, protocol.Target{
			Address: m.Target,
			Payload: payload,
		}, m.Repeatable)
		if err != nil {
			return fmt.Errorf("conditions[%d]: %w", i, err)
		}
		registered = append(registered, c)
	}

	return output(registered, func() {
		for _, c := range registered {
			fmt.Printf("Registered condition %d (%s, value %d, target %s)\n", c.ID, c.Type, c.Value, c.Target.Address)
		}
	})
}
