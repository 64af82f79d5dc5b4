package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jordancj7/folio/internal/core"
	"github.com/jordancj7/folio/internal/core/store"
	"github.com/jordancj7/folio/internal/output"
)

var messagesCmd = &cobra.Command{
	Use:     "messages",
	Aliases: []string{"inbox"},
	Short:   "Manage contact form messages",
}

var messagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List messages, newest first",
	RunE:  runMessagesList,
}

var messagesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one message in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runMessagesShow,
}

var messagesMarkCmd = &cobra.Command{
	Use:   "mark <id>",
	Short: "Set the read or starred flag of a message",
	Long: `Set the read or starred flag of a message.

Flags not given are left unchanged:

  messages mark <id> --read
  messages mark <id> --star=false`,
	Args: cobra.ExactArgs(1),
	RunE: runMessagesMark,
}

var messagesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a message",
	Args:  cobra.ExactArgs(1),
	RunE:  runMessagesDelete,
}

func init() {
	messagesListCmd.Flags().Bool("unread", false, "Only unread messages")
	messagesListCmd.Flags().Bool("starred", false, "Only starred messages")
	messagesListCmd.Flags().Int("limit", 50, "Maximum number of messages")
	messagesListCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|markdown")
	messagesListCmd.Flags().String("out", "", "Write output to a file (default stdout)")

	messagesShowCmd.Flags().String("output-format", string(output.FormatMarkdown), "Output format: table|json|markdown")

	messagesMarkCmd.Flags().Bool("read", true, "Mark as read (--read=false marks unread)")
	messagesMarkCmd.Flags().Bool("star", true, "Star the message (--star=false removes the star)")

	messagesDeleteCmd.Flags().Bool("yes", false, "Confirm deletion")

	messagesCmd.AddCommand(messagesListCmd, messagesShowCmd, messagesMarkCmd, messagesDeleteCmd)
	rootCmd.AddCommand(messagesCmd)
}

func openMessageStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return nil, err
	}
	return openStore(cmd.Context(), cfg.Store)
}

func runMessagesList(cmd *cobra.Command, args []string) error {
	formatValue, _ := cmd.Flags().GetString("output-format")
	format, err := output.ParseFormat(formatValue)
	if err != nil {
		return err
	}
	unread, _ := cmd.Flags().GetBool("unread")
	starred, _ := cmd.Flags().GetBool("starred")
	limit, _ := cmd.Flags().GetInt("limit")
	outPath, _ := cmd.Flags().GetString("out")

	db, err := openMessageStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup

	messages, err := db.ListMessages(cmd.Context(), store.MessageQuery{Unread: unread, Starred: starred, Limit: limit})
	if err != nil {
		return err
	}

	rendered, err := output.NewFormatter(format).FormatMessages(messages)
	if err != nil {
		return err
	}

	sink, err := openSink(outPath)
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()

	_, err = fmt.Fprintln(sink.writer, rendered)
	return err
}

func runMessagesShow(cmd *cobra.Command, args []string) error {
	formatValue, _ := cmd.Flags().GetString("output-format")
	format, err := output.ParseFormat(formatValue)
	if err != nil {
		return err
	}

	db, err := openMessageStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup

	msg, err := db.GetMessage(cmd.Context(), strings.TrimSpace(args[0]))
	if err != nil {
		return messageError(args[0], err)
	}

	rendered, err := output.NewFormatter(format).FormatMessages([]core.Message{*msg})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

func runMessagesMark(cmd *cobra.Command, args []string) error {
	var flags core.MessageFlags
	if cmd.Flags().Changed("read") {
		read, _ := cmd.Flags().GetBool("read")
		flags.Read = &read
	}
	if cmd.Flags().Changed("star") {
		star, _ := cmd.Flags().GetBool("star")
		flags.Starred = &star
	}
	if flags.Empty() {
		return errors.New("pass --read and/or --star")
	}

	db, err := openMessageStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup

	msg, err := db.UpdateMessageFlags(cmd.Context(), strings.TrimSpace(args[0]), flags)
	if err != nil {
		return messageError(args[0], err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s read=%t starred=%t\n", msg.ID, msg.Read, msg.Starred)
	return err
}

func runMessagesDelete(cmd *cobra.Command, args []string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return errors.New("delete requires --yes")
	}

	db, err := openMessageStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup

	id := strings.TrimSpace(args[0])
	if err := db.DeleteMessage(cmd.Context(), id); err != nil {
		return messageError(id, err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
	return err
}

func messageError(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("message %s not found", id)
	}
	return err
}
