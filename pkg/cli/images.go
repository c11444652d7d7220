package cli

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"encoding/json"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/vorteil/gptguid/pkg/imagetools"
	"github.com/vorteil/gptguid/pkg/vgpt"
	"github.com/vorteil/gptguid/pkg/vimg"
)

// parseGUIDArg returns the GUID named by the optional argument, or a new
// random GUID if there is none.
func parseGUIDArg(args []string) (uuid.UUID, error) {
	if len(args) == 0 || args[0] == "" {
		return uuid.New(), nil
	}
	return vgpt.ParseGUID(args[0])
}

func openImage(cmd *cobra.Command, path string, mode vimg.Mode) (*vimg.Image, error) {
	return vimg.Open(&vimg.Args{
		Path:        path,
		Mode:        mode,
		Logger:      log,
		JournalPath: journalPath(cmd.Flags(), path),
	})
}

func dumpHeaders(what string, primary, backup vgpt.Header) {
	if !flagDebug {
		return
	}
	log.Debugf("%s primary header:\n%s", what, spew.Sdump(primary))
	log.Debugf("%s backup header:\n%s", what, spew.Sdump(backup))
}

var gptCmd = &cobra.Command{
	Use:   "gpt IMAGE",
	Short: "Summarize the primary and backup GPT headers.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {

		err := SetNumberModeFlagCMD(cmd)
		if err != nil {
			SetError(err, 1)
			return
		}

		img, err := openImage(cmd, args[0], vimg.ReadOnly)
		if err != nil {
			SetError(err, 2)
			return
		}
		defer img.Close()

		primary, backup, err := img.ReadGPTHeaders()
		if err != nil {
			SetError(err, 3)
			return
		}

		PlainTable(cmd.OutOrStdout(), [][]string{
			{"", "Primary", "Backup"},
			{"Header LBA", PrintableLBA(primary.CurrentLBA).String(), PrintableLBA(backup.CurrentLBA).String()},
			{"Backup LBA", PrintableLBA(primary.BackupLBA).String(), PrintableLBA(backup.BackupLBA).String()},
			{"First usable LBA", PrintableLBA(primary.FirstUsableLBA).String(), PrintableLBA(backup.FirstUsableLBA).String()},
			{"Last usable LBA", PrintableLBA(primary.LastUsableLBA).String(), PrintableLBA(backup.LastUsableLBA).String()},
			{"Disk GUID", primary.DiskGUID.String(), backup.DiskGUID.String()},
			{"First entries LBA", PrintableLBA(primary.EntriesStartingLBA).String(), PrintableLBA(backup.EntriesStartingLBA).String()},
			{"Entries", PrintableSize(primary.NumEntries).String(), PrintableSize(backup.NumEntries).String()},
			{"Entry size", PrintableSize(primary.EntrySize).String(), PrintableSize(backup.EntrySize).String()},
			{"Entries CRC32", fmt.Sprintf("0x%08x", primary.EntriesCRC32), fmt.Sprintf("0x%08x", backup.EntriesCRC32)},
		})

		if !primary.IsBackupOf(backup) || !backup.IsBackupOf(primary) {
			log.Warnf("GPT headers of %s don't match", args[0])
		}

	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect IMAGE",
	Short: "Report on the GPT headers of an image as YAML or JSON.",
	Args:  cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {

		format, err := cmd.Flags().GetString("format")
		if err != nil {
			panic(err)
		}

		switch format {
		case "yaml", "json":
			return nil
		default:
			return errors.Errorf("invalid format '%s'", format)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {

		format, err := cmd.Flags().GetString("format")
		if err != nil {
			panic(err)
		}

		img, err := openImage(cmd, args[0], vimg.ReadOnly)
		if err != nil {
			SetError(err, 2)
			return
		}
		defer img.Close()

		report, err := imagetools.ImageGPT(img)
		if err != nil {
			SetError(err, 3)
			return
		}

		var data []byte
		switch format {
		case "json":
			data, err = json.MarshalIndent(report, "", "  ")
			data = append(data, '\n')
		default:
			data, err = yaml.Marshal(report)
		}
		if err != nil {
			SetError(err, 4)
			return
		}

		_, err = cmd.OutOrStdout().Write(data)
		if err != nil {
			SetError(err, 5)
			return
		}

	},
}

var validateCmd = &cobra.Command{
	Use:   "validate IMAGE",
	Short: "Check that the primary and backup GPT headers agree.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {

		img, err := openImage(cmd, args[0], vimg.ReadOnly)
		if err != nil {
			SetError(err, 2)
			return
		}
		defer img.Close()

		if img.HasJournal() {
			log.Warnf("%s has an unrecovered journal (run 'gptguid recover %s')", args[0], args[0])
		}

		err = img.Validate()
		if err != nil {
			SetError(err, 3)
			return
		}

		log.Printf("%s: GPT headers are valid", args[0])

	},
}

var updateGUIDCmd = &cobra.Command{
	Use:   "update-guid IMAGE [GUID]",
	Short: "Replace the disk GUID in both GPT headers.",
	Long: `Replace the disk GUID stored in the primary and backup GPT headers of IMAGE.
If GUID is omitted a random one is generated.

Both headers must already be valid backups of each other. Unless journaling
is disabled the sectors about to be overwritten are saved first, so that an
interrupted update can be undone with 'gptguid recover'.`,
	Aliases: []string{"guid"},
	Args:    cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {

		g, err := parseGUIDArg(args[1:])
		if err != nil {
			SetError(err, 1)
			return
		}

		img, err := openImage(cmd, args[0], vimg.ReadWrite)
		if err != nil {
			SetError(err, 2)
			return
		}
		defer img.Close()

		primary, backup, err := img.ReadGPTHeaders()
		if err != nil {
			SetError(err, 3)
			return
		}
		dumpHeaders("old", primary, backup)

		err = img.UpdateGUID(g)
		if err != nil {
			SetError(err, 4)
			return
		}

		dumpHeaders("new", primary.WithNewGUID(g), backup.WithNewGUID(g))

		log.Printf("%s: disk GUID changed from %s to %s", args[0], primary.DiskGUID, g)

	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover IMAGE",
	Short: "Undo an interrupted header update using its journal.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {

		img, err := openImage(cmd, args[0], vimg.ReadWrite)
		if err != nil {
			SetError(err, 2)
			return
		}
		defer img.Close()

		err = img.Recover()
		if err != nil {
			SetError(err, 3)
			return
		}

		err = img.Validate()
		if err != nil {
			log.Warnf("%s was recovered but its GPT headers are still invalid: %v", args[0], err)
		} else {
			log.Printf("%s: recovered from journal", args[0])
		}

	},
}

var initCmd = &cobra.Command{
	Use:   "init IMAGE [GUID]",
	Short: "Write a protective MBR and an empty GPT to an image.",
	Long: `Write a protective MBR and an empty GUID Partition Table spanning the whole of
IMAGE. If GUID is omitted a random one is generated. Images that already hold a
valid GPT are left alone unless --force is given.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {

		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			panic(err)
		}

		g, err := parseGUIDArg(args[1:])
		if err != nil {
			SetError(err, 1)
			return
		}

		img, err := openImage(cmd, args[0], vimg.ReadWrite)
		if err != nil {
			SetError(err, 2)
			return
		}
		defer img.Close()

		if !force && img.Validate() == nil {
			SetError(errors.Errorf("%s already contains a valid GPT (you can use '--force' to overwrite it)", args[0]), 3)
			return
		}

		err = img.Initialize(g)
		if err != nil {
			SetError(err, 4)
			return
		}

		log.Printf("%s: initialized GPT with disk GUID %s", args[0], g)

	},
}

func init() {
	f := gptCmd.Flags()
	f.String("numbers", "short", "number format: short, dec, or hex")

	f = inspectCmd.Flags()
	f.String("format", "yaml", "specify output format (yaml, json)")

	f = validateCmd.Flags()
	f.String("journal", "", "journal file to check for (default from config)")

	f = updateGUIDCmd.Flags()
	f.String("journal", "", "journal file to protect the update with (default from config)")
	f.Bool("no-journal", false, "update the headers without a journal")

	f = recoverCmd.Flags()
	f.String("journal", "", "journal file to recover from (default from config)")

	f = initCmd.Flags()
	f.BoolP("force", "f", false, "overwrite an existing valid GPT")
	f.String("journal", "", "journal file to protect the header writes with (default from config)")
	f.Bool("no-journal", false, "write the headers without a journal")
}
