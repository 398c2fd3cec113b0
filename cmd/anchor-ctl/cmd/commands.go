package cmd

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/anchor-watch/internal/domain/anchor"
	"github.com/oshokin/anchor-watch/internal/domain/geo"
	"github.com/oshokin/anchor-watch/internal/service/ctl"
)

var (
	errDropArgs   = errors.New("give latitude and longitude, or --next-fix")
	errDropOffset = errors.New("offset must be a non-negative number of meters")
)

func newDropCommand() *cobra.Command {
	var (
		nextFix bool
		offset  float64
		bearing float64
	)

	cmd := &cobra.Command{
		Use:   "drop [latitude longitude]",
		Short: "Drop the anchor at a position or at the next fix.",
		Long: `Sets the anchor at the given coordinate, or with --next-fix at the next
position fix the server accepts. Fails while an anchor is already set; reset first.
With --offset the anchor is placed that many meters from the coordinate along
--bearing, e.g. the bow heading when the GPS antenna sits at the stern.
Put -- before negative coordinates: anchor-ctl drop -- -33.8568 151.2153`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case nextFix && len(args) == 0 && offset == 0:
				return run(cmd, ctl.DropAtNextFix())
			case !nextFix && len(args) == 2:
				coordinate, err := dropPosition(args[0], args[1], offset, bearing)
				if err != nil {
					return err
				}

				return run(cmd, ctl.Drop(coordinate))
			default:
				return errDropArgs
			}
		},
	}

	cmd.Flags().BoolVarP(&nextFix, "next-fix", "n", false, "anchor at the next accepted fix")
	cmd.Flags().Float64VarP(&offset, "offset", "o", 0, "meters from the coordinate to the anchor")
	cmd.Flags().Float64VarP(&bearing, "bearing", "b", 0, "direction of the offset in degrees true")

	return cmd
}

func newResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the anchor and any pending drop.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, ctl.Reset())
		},
	}
}

func newRadiusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "radius <meters>",
		Short: "Change the safe radius.",
		Long:  "Changes the safe radius; the verdict is re-evaluated against the last fix at once.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meters, err := parseNumber("radius", args[0])
			if err != nil {
				return err
			}

			return run(cmd, ctl.SetRadius(meters))
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current watch state.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, ctl.Status())
		},
	}
}

func newFixCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fix <latitude> <longitude> [accuracy-m]",
		Short: "Submit one position fix by hand.",
		Long: `Submits a fix stamped by the server. Without an accuracy the server assumes
the configured default. Put -- before negative coordinates.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			coordinate, err := parseCoordinate(args[0], args[1])
			if err != nil {
				return err
			}

			fix := anchor.PositionFix{Coordinate: coordinate}

			if len(args) == 3 {
				if fix.HorizontalAccuracyMeters, err = parseNumber("accuracy", args[2]); err != nil {
					return err
				}
			}

			return run(cmd, ctl.SubmitFix(fix))
		},
	}
}

func newFollowCommand() *cobra.Command {
	var retry time.Duration

	cmd := &cobra.Command{
		Use:   "follow",
		Short: "Print the state and every change until interrupted.",
		Long:  "Streams anchor drops, resets and safe/alarmed transitions. Reconnects when the server goes away.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, ctl.Follow(retry))
		},
	}

	cmd.Flags().DurationVarP(&retry, "retry", "r", ctl.DefaultRetryInterval, "delay before reconnecting")

	return cmd
}

// dropPosition parses the coordinate and moves it by offset meters along bearing.
func dropPosition(latitude, longitude string, offset, bearing float64) (geo.Coordinate, error) {
	coordinate, err := parseCoordinate(latitude, longitude)
	if err != nil {
		return geo.Coordinate{}, err
	}

	if math.IsNaN(offset) || math.IsInf(offset, 0) || offset < 0 {
		return geo.Coordinate{}, fmt.Errorf("%w: %v", errDropOffset, offset)
	}

	if offset == 0 {
		return coordinate, nil
	}

	return geo.Destination(coordinate, bearing, offset)
}

func parseCoordinate(latitude, longitude string) (geo.Coordinate, error) {
	lat, err := parseNumber("latitude", latitude)
	if err != nil {
		return geo.Coordinate{}, err
	}

	lon, err := parseNumber("longitude", longitude)
	if err != nil {
		return geo.Coordinate{}, err
	}

	return geo.NewCoordinate(lat, lon)
}

func parseNumber(name, raw string) (float64, error) {
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}

	return value, nil
}
