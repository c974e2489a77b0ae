package cmd

import (
	"fmt"
	"log"

	"crowdbeat/config"
	"crowdbeat/storage"

	"github.com/spf13/cobra"
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "Test the MinIO connection",
	Long:  `Connect to MinIO with the configured credentials and verify the cover bucket exists.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("MinIO: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		if err := storage.CheckConnection(cfg); err != nil {
			log.Fatalf("MinIO check failed: %v", err)
		}
		fmt.Println("Bucket reachable.")
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)
}
