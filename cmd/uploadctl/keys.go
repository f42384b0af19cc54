package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"data-upload-service/internal/domain"
	"data-upload-service/internal/infra"
	"data-upload-service/internal/repository"
	"data-upload-service/internal/usecase"
)

// newKeyMaterialService は鍵ストアとKMSに接続したKeyMaterialServiceを生成する。
// 返される関数でKMSクライアントとDB接続を閉じる。
func newKeyMaterialService(ctx context.Context) (*usecase.KeyMaterialService, func(), error) {
	db, err := openDB()
	if err != nil {
		return nil, nil, err
	}
	kmsClient, err := infra.NewKMSClient(ctx, os.Getenv("KMS_KEY_NAME"))
	if err != nil {
		_ = infra.CloseDB(db)
		return nil, nil, err
	}
	svc := usecase.NewKeyMaterialService(repository.NewTenantKeyRepository(db), kmsClient)
	return svc, func() {
		_ = kmsClient.Close()
		_ = infra.CloseDB(db)
	}, nil
}

func newKeysCmd() *cobra.Command {
	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "Register externally issued key material",
	}
	keysCmd.AddCommand(keysImportCmd())
	keysCmd.AddCommand(keysDisableCmd())
	return keysCmd
}

// keysImportCmd は証明書と秘密鍵を鍵ストアに登録するコマンド。
func keysImportCmd() *cobra.Command {
	var appID, certPath, keyPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a certificate and optional private key for an app",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			material := &domain.KeyMaterial{AppID: appID}
			var err error
			if material.CertificatePEM, err = os.ReadFile(certPath); err != nil {
				return fmt.Errorf("reading certificate: %w", err)
			}
			if keyPath != "" {
				if material.PrivateKeyPEM, err = os.ReadFile(keyPath); err != nil {
					return fmt.Errorf("reading private key: %w", err)
				}
			}

			svc, closeFn, err := newKeyMaterialService(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			key, err := svc.Import(ctx, material)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			mode := "encrypt-only"
			if material.HasPrivateKey() {
				mode = "encrypt+decrypt"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported key material for app %q (id: %s, %s)\n", key.AppID, key.ID, mode)
			return nil
		},
	}
	cmd.Flags().StringVar(&appID, "app", "", "App ID (required)")
	cmd.Flags().StringVar(&certPath, "cert", "", "PEM certificate file (required)")
	cmd.Flags().StringVar(&keyPath, "key", "", "PEM RSA private key file (optional)")
	cmd.MarkFlagRequired("app")
	cmd.MarkFlagRequired("cert")
	return cmd
}

// keysDisableCmd は鍵素材を無効化するコマンド。
func keysDisableCmd() *cobra.Command {
	var appID string
	cmd := &cobra.Command{
		Use:   "disable",
		Short: "Disable the key material of an app",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			svc, closeFn, err := newKeyMaterialService(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := svc.Disable(ctx, appID); err != nil {
				return fmt.Errorf("disable failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Disabled key material for app %q\n", appID)
			return nil
		},
	}
	cmd.Flags().StringVar(&appID, "app", "", "App ID (required)")
	cmd.MarkFlagRequired("app")
	return cmd
}
