package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sjawhar/devenv/internal/restore"
	"github.com/sjawhar/devenv/internal/s3url"
)

var (
	listBackupsBase    string
	listBackupsMachine string
)

var listBackupsCmd = &cobra.Command{
	Use:   "list-backups",
	Short: "List the backup names available for a machine",
	Run:   runListBackups,
}

func init() {
	listBackupsCmd.Flags().StringVar(&listBackupsBase, "base", "", "s3://bucket/prefix source (required)")
	listBackupsCmd.Flags().StringVar(&listBackupsMachine, "machine", "", "machine name (required)")
	_ = listBackupsCmd.MarkFlagRequired("base")
	_ = listBackupsCmd.MarkFlagRequired("machine")
}

func runListBackups(cmd *cobra.Command, args []string) {
	ctx, cancel, err := withDeadline(cmd.Context())
	if err != nil {
		fail("devenv list-backups: %v", err)
	}
	defer cancel()

	bucket, basePrefix, err := s3url.Parse(listBackupsBase)
	if err != nil {
		fail("devenv list-backups: %v", err)
	}
	store, err := newStore(ctx, bucket)
	if err != nil {
		fail("devenv list-backups: %v", err)
	}

	names, err := restore.ListBackups(ctx, store, basePrefix, listBackupsMachine)
	if err != nil {
		fail("devenv list-backups: %v", err)
	}
	for _, n := range names {
		fmt.Println(n)
	}
}
