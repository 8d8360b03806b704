package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/node"
	"github.com/frahmantamala/orgtree/internal/user"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var (
	rootName        string
	rootType        string
	rootLocation    string
	managerEmail    string
	managerPassword string
	managerName     string
	managerGender   string
	hashCost        int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Install the root node and an optional first manager",
	Long:  `Install the root of the hierarchy through the regular node rules, acting as the admin. Running it twice is harmless.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		deps, err := initializeDependencies(ctx)
		if err != nil {
			log.Fatalf("failed to init dependencies: %v", err)
		}
		defer deps.close(ctx)

		admin := internal.Actor{ID: internal.AdminID, Role: internal.RoleAdmin}

		root, err := deps.NodeService.GetByName(ctx, rootName)
		switch {
		case err == nil:
			fmt.Println("root node already exists:", root.ID)
		case errors.Is(err, internal.ErrNodeNotFound):
			root, err = deps.NodeService.Create(ctx, admin, node.CreateNodeDTO{
				Name:     rootName,
				Type:     rootType,
				Location: rootLocation,
			})
			if err != nil {
				log.Fatalf("failed to create root node: %v", err)
			}
			fmt.Println("Seeded root node:", root.ID)
		default:
			log.Fatalf("failed to look up root node: %v", err)
		}

		if managerEmail == "" {
			return
		}
		u, err := deps.UserService.Create(ctx, admin, user.CreateUserDTO{
			Email:    managerEmail,
			Gender:   managerGender,
			Password: managerPassword,
			FullName: managerName,
			Role:     string(internal.RoleManager),
			NodeID:   root.ID,
		})
		if errors.Is(err, internal.ErrEmailTaken) {
			fmt.Println("manager already exists:", managerEmail)
			return
		}
		if err != nil {
			log.Fatalf("failed to create manager: %v", err)
		}
		fmt.Println("Seeded manager:", u.Email)
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [plain]",
	Short: "Print a bcrypt hash for security.admin.password_hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), hashCost)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(hash))
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&rootName, "root-name", "Headquarters", "name of the root node")
	seedCmd.Flags().StringVar(&rootType, "root-type", "office", "type of the root node")
	seedCmd.Flags().StringVar(&rootLocation, "root-location", "", "location of the root node")
	seedCmd.Flags().StringVar(&managerEmail, "manager-email", "", "create a manager attached to the root")
	seedCmd.Flags().StringVar(&managerPassword, "manager-password", "", "password of the seeded manager")
	seedCmd.Flags().StringVar(&managerName, "manager-name", "Root Manager", "full name of the seeded manager")
	seedCmd.Flags().StringVar(&managerGender, "manager-gender", "other", "gender of the seeded manager")

	hashPasswordCmd.Flags().IntVar(&hashCost, "cost", bcrypt.DefaultCost+2, "bcrypt cost")
}
