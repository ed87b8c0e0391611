package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/subcommands"
	"github.com/hyopark/stock_master_bridge/config"
	"github.com/hyopark/stock_master_bridge/data"
	"github.com/hyopark/stock_master_bridge/data/cache"
	"github.com/hyopark/stock_master_bridge/data/repository/postgres"
	"github.com/hyopark/stock_master_bridge/internal/externalApi/cloudStorageApi/googleDriveApi"
	"github.com/hyopark/stock_master_bridge/internal/reportGenerator/xlsxGenerator"
	"github.com/hyopark/stock_master_bridge/internal/service/masterService"
	"github.com/hyopark/stock_master_bridge/utils"
)

type exportCmd struct {
	cfg *config.Config

	outDir string
	upload bool
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "export the security master to an xlsx report" }
func (*exportCmd) Usage() string {
	return `export [-out dir] [-upload]

  Writes the full security master as security_master_YYYYMMDD.xlsx.
  With -upload, also uploads the report to Google Drive (requires
  GOOGLE_DRIVE_CREDENTIALS_FILE) and prints the download link.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.outDir, "out", ".", "directory to write the report to")
	f.BoolVar(&c.upload, "upload", false, "upload the report to Google Drive")
}

func (c *exportCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if c.upload && c.cfg.GoogleDrive.CredentialsFile == "" {
		fmt.Println("missing required environment variables: GOOGLE_DRIVE_CREDENTIALS_FILE")
		return exitConfigError
	}

	ctx = utils.NewCtxWithRqID(ctx)

	pgClient := data.NewPostgresClient(c.cfg)
	defer pgClient.Close()

	redisClient := data.NewRedisClient(c.cfg)
	defer redisClient.Close()

	repo := postgres.NewPostgres(c.cfg, pgClient)
	redisCache := cache.NewRedisCache(redisClient, c.cfg)
	masterSvc := masterService.New(repo, redisCache)

	securities, err := masterSvc.ExportSecurities(ctx)
	if err != nil {
		fmt.Println(err.Error())
		return subcommands.ExitFailure
	}

	fileBytes, ext, err := xlsxGenerator.New().Generate(ctx, securities)
	if err != nil {
		fmt.Println(err.Error())
		return subcommands.ExitFailure
	}

	filename := fmt.Sprintf("security_master_%s%s", time.Now().Format("20060102"), ext)
	outPath := filepath.Join(c.outDir, filename)
	if err := os.WriteFile(outPath, fileBytes, 0o644); err != nil {
		fmt.Println(err.Error())
		return subcommands.ExitFailure
	}
	fmt.Printf("wrote %s (%d rows)\n", outPath, len(securities))

	if c.upload {
		driveApi := googleDriveApi.New(ctx, c.cfg)
		link, err := driveApi.UploadFile(ctx, bytes.NewReader(fileBytes), filename)
		if err != nil {
			fmt.Println(err.Error())
			return subcommands.ExitFailure
		}
		fmt.Printf("download link: %s\n", link)

		if err := driveApi.DeleteOldFiles(ctx); err != nil {
			fmt.Println(err.Error())
		}
	}
	return exitOK
}
