package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"lifesignal/internal/contacts"
	"lifesignal/internal/models"
	"lifesignal/internal/service"

	"github.com/spf13/cobra"
)

// ContactsCmd 紧急联系人管理
func ContactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage emergency contacts",
		Long:  "List, add, remove, activate and deactivate emergency contacts in the configured contact store",
	}

	cmd.AddCommand(contactsListCmd())
	cmd.AddCommand(contactsAddCmd())
	cmd.AddCommand(contactsRemoveCmd())
	cmd.AddCommand(contactsSetActiveCmd("activate", true))
	cmd.AddCommand(contactsSetActiveCmd("deactivate", false))
	return cmd
}

// withRegistry 打开配置的联系人存储并执行 fn
func withRegistry(ctx context.Context, fn func(r *contacts.Registry) error) error {
	cfg, log, err := loadConfig("warn")
	if err != nil {
		return err
	}
	defer log.Sync()

	conns, err := service.OpenConnections(ctx, cfg, service.ContactNeeds(cfg), log)
	if err != nil {
		return err
	}
	defer conns.Close()

	store, err := service.NewContactStore(cfg, conns, log)
	if err != nil {
		return err
	}
	return fn(contacts.NewRegistry(ctx, store, log))
}

func contactsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List emergency contacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			activeOnly, _ := cmd.Flags().GetBool("active")
			return withRegistry(cmd.Context(), func(r *contacts.Registry) error {
				printContacts(cmd.OutOrStdout(), r.List(activeOnly))
				return nil
			})
		},
	}
	cmd.Flags().Bool("active", false, "Only show active contacts")
	return cmd
}

func contactsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an emergency contact",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			phone, _ := cmd.Flags().GetString("phone")
			relationship, _ := cmd.Flags().GetString("relationship")
			prefName, _ := cmd.Flags().GetString("preference")
			inactive, _ := cmd.Flags().GetBool("inactive")

			pref, err := models.ParsePreference(prefName)
			if err != nil {
				return fmt.Errorf("%w\nValid preferences: all, critical, none", err)
			}

			return withRegistry(cmd.Context(), func(r *contacts.Registry) error {
				c, err := r.Add(cmd.Context(), models.EmergencyContact{
					Name:                   name,
					PhoneNumber:            phone,
					Relationship:           relationship,
					NotificationPreference: pref,
					IsActive:               !inactive,
				})
				if err != nil {
					return fmt.Errorf("failed to add contact: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Added contact %s: %s (%s)\n", c.ID, c.Name, c.NotificationPreference)
				return nil
			})
		},
	}
	cmd.Flags().String("name", "", "Contact name (required)")
	cmd.Flags().String("phone", "", "Phone number (required)")
	cmd.Flags().String("relationship", "", "Relationship to the user")
	cmd.Flags().String("preference", "all", "Notification preference: all, critical, none")
	cmd.Flags().Bool("inactive", false, "Add the contact as inactive")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func contactsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [id]",
		Short: "Remove an emergency contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd.Context(), func(r *contacts.Registry) error {
				if err := r.Remove(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to remove contact: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed contact %s\n", args[0])
				return nil
			})
		},
	}
}

func contactsSetActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [id]",
		Short: fmt.Sprintf("Mark an emergency contact %sd", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd.Context(), func(r *contacts.Registry) error {
				if err := r.SetActive(cmd.Context(), args[0], active); err != nil {
					return fmt.Errorf("failed to update contact: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Contact %s %sd\n", args[0], use)
				return nil
			})
		},
	}
}

func printContacts(out io.Writer, list []models.EmergencyContact) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No emergency contacts found")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPHONE\tRELATIONSHIP\tPREFERENCE\tACTIVE")
	for _, c := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n",
			c.ID, c.Name, c.PhoneNumber, c.Relationship, c.NotificationPreference, c.IsActive)
	}
	w.Flush()
}
