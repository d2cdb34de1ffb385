package main

import (
	"context"
	"fmt"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/spf13/cobra"

	"github.com/ManuelReschke/enrollbilling/internal/pkg/billing"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/bootstrap"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/env"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/gateway"
)

const commandTimeout = 2 * time.Minute

func loadService() (*billing.Service, error) {
	env.SetupEnvFile()
	return bootstrap.BillingService()
}

func orphansCmd() *cobra.Command {
	var asJSON, refresh bool
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "List live gateway subscriptions with no local link",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadService()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			report, err := svc.GetOrphanReport(ctx, refresh)
			if err != nil {
				return err
			}
			return renderOrphanReport(cmd.OutOrStdout(), report, asJSON)
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Ignore the cached report")
	return cmd
}

func matchesCmd() *cobra.Command {
	var email, program string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "matches",
		Short: "Find candidate profiles for a customer email",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadService()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			matches, err := svc.GetPotentialMatches(ctx, email, program)
			if err != nil {
				return err
			}
			return renderMatches(cmd.OutOrStdout(), matches, asJSON)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Customer email")
	cmd.Flags().StringVar(&program, "program", "", "MAHAD or DUGSI")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("program")
	return cmd
}

func linkCmd() *cobra.Command {
	var subscriptionID, program string
	var profileID uint
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link an orphaned subscription to a profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadService()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			result := svc.LinkSubscriptionToStudent(ctx, subscriptionID, profileID, program)
			if !result.Success {
				fiberlog.Errorf("[Reconcile] Link %s -> profile %d failed: %s", subscriptionID, profileID, result.Error)
				return fmt.Errorf("link failed: %s", result.Error)
			}
			fiberlog.Infof("[Reconcile] Linked %s to profile %d (%s)", subscriptionID, profileID, program)
			fmt.Fprintf(cmd.OutOrStdout(), "linked %s to profile %d\n", subscriptionID, profileID)
			return nil
		},
	}
	cmd.Flags().StringVar(&subscriptionID, "subscription", "", "Gateway subscription id")
	cmd.Flags().UintVar(&profileID, "profile", 0, "Program profile id")
	cmd.Flags().StringVar(&program, "program", "", "MAHAD or DUGSI")
	_ = cmd.MarkFlagRequired("subscription")
	_ = cmd.MarkFlagRequired("profile")
	_ = cmd.MarkFlagRequired("program")
	return cmd
}

func syncCmd() *cobra.Command {
	var subscriptionID, account string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Refresh a local subscription from the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			accountType, err := gateway.ParseAccountType(account)
			if err != nil {
				return err
			}
			svc, err := loadService()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			result, err := svc.SyncSubscriptionFromGateway(ctx, subscriptionID, accountType)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s status=%s updated=%t\n", subscriptionID, result.Status, result.Updated)
			return nil
		},
	}
	cmd.Flags().StringVar(&subscriptionID, "subscription", "", "Gateway subscription id")
	cmd.Flags().StringVar(&account, "account", "", "MAHAD, DUGSI, YOUTH_EVENTS or GENERAL_DONATION")
	_ = cmd.MarkFlagRequired("subscription")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}
