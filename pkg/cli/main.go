package cli

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sisatech/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	release = "0.0.0"
	commit  = ""
	date    = "Thu, 01 Jan 1970 00:00:00 +0000"
)

// Each command executed may have a error message and status code
var errorStatusCode int
var errorStatusMessage error

// SetError sets the global variables for when the process exits to display accordingly
func SetError(err error, code int) {
	errorStatusCode = code
	errorStatusMessage = err
}

// HandleErrors reports the error recorded by SetError, if any, and exits the
// process with its status code. Defer it at the top of main.
func HandleErrors() {
	if errorStatusMessage == nil {
		return
	}
	log.Errorf("%v", errorStatusMessage)
	if errorStatusCode == 0 {
		errorStatusCode = 1
	}
	os.Exit(errorStatusCode)
}

// NumbersMode determines which numbers format a PrintableSize should render to.
var NumbersMode int

// SetNumbersMode parses s and sets NumbersMode accordingly.
func SetNumbersMode(s string) error {
	s = strings.ToLower(s)
	s = strings.TrimSpace(s)
	switch s {
	case "", "short":
		NumbersMode = 0
	case "dec", "decimal":
		NumbersMode = 1
	case "hex", "hexadecimal":
		NumbersMode = 2
	default:
		return errors.New("numbers mode must be one of 'dec', 'hex', or 'short'")
	}
	return nil
}

// SetNumberModeFlagCMD : Will SetNumberMode to the value of the cmd flag
// 'numbers', falling back to the configured default when the flag is unset.
func SetNumberModeFlagCMD(cmd *cobra.Command) error {
	numbers, err := cmd.Flags().GetString("numbers")
	if err != nil {
		return err
	}

	if !cmd.Flags().Changed("numbers") {
		numbers = viper.GetString(configNumbers)
	}

	err = SetNumbersMode(numbers)
	if err != nil {
		return errors.Wrap(err, "couldn't parse value of --numbers")
	}

	return nil
}

// PrintableSize is a wrapper around uint64 to alter its string formatting behaviour.
type PrintableSize uint64

// String returns a string representation of the PrintableSize, formatted according to the global NumbersMode.
func (c PrintableSize) String() string {
	switch NumbersMode {
	case 0:
		x := uint64(c)
		if x == 0 {
			return "0"
		}
		var units int
		var suffixes = []string{"", "K", "M", "G"}
		for {
			if x%1024 != 0 {
				break
			}
			x /= 1024
			units++
			if units == len(suffixes)-1 {
				break
			}
		}
		return fmt.Sprintf("%d%s", x, suffixes[units])
	case 1:
		return fmt.Sprintf("%d", uint64(c))
	case 2:
		return fmt.Sprintf("%#x", uint64(c))
	default:
		panic("invalid NumbersMode")
	}
}

// PrintableLBA is a sector address. Unlike PrintableSize it never gets unit
// suffixes: "short" and "dec" both render it in decimal.
type PrintableLBA uint64

// String returns a string representation of the PrintableLBA, formatted according to the global NumbersMode.
func (c PrintableLBA) String() string {
	switch NumbersMode {
	case 0, 1:
		return fmt.Sprintf("%d", uint64(c))
	case 2:
		return fmt.Sprintf("%#x", uint64(c))
	default:
		panic("invalid NumbersMode")
	}
}

// PlainTable prints data in a grid, handling alignment automatically. The
// first row is the header.
func PlainTable(w io.Writer, vals [][]string) {
	if len(vals) == 0 {
		panic(errors.New("no rows provided"))
	}

	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetHeader(vals[0])
	for i := 1; i < len(vals); i++ {
		table.Append(vals[i])
	}

	table.Render()
}
