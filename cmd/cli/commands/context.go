package commands

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/jakechorley/helpboard/internal/config"
	"github.com/jakechorley/helpboard/pkg/clients/gmailclient"
	"github.com/jakechorley/helpboard/pkg/clients/sheetsclient"
	"github.com/jakechorley/helpboard/pkg/db"
	"github.com/jakechorley/helpboard/pkg/utils"
)

// AppContext holds the application dependencies shared across all commands.
// Google clients are created on first use so commands that don't need them
// never trigger the OAuth flow.
type AppContext struct {
	Env      string
	Cfg      *config.Config
	Database db.Database
	Logger   *zap.Logger
	Ctx      context.Context

	googleToken  *oauth2.Token
	oauthCfg     *config.OAuthClientConfig
	sheetsClient *sheetsclient.Client
	gmailClient  *gmailclient.Client
}

// SheetsClient returns the Google Sheets client, authenticating if needed
func (a *AppContext) SheetsClient() (*sheetsclient.Client, error) {
	if a.sheetsClient != nil {
		return a.sheetsClient, nil
	}

	if err := a.authenticate(); err != nil {
		return nil, err
	}

	client, err := sheetsclient.NewClient(a.Ctx, a.oauthCfg, a.googleToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	a.sheetsClient = client
	return client, nil
}

// GmailClient returns the Gmail client, authenticating if needed
func (a *AppContext) GmailClient() (*gmailclient.Client, error) {
	if a.gmailClient != nil {
		return a.gmailClient, nil
	}

	if err := a.authenticate(); err != nil {
		return nil, err
	}

	client, err := gmailclient.NewClient(a.Ctx, a.oauthCfg, a.googleToken, a.Cfg.GmailUserID, a.Cfg.GmailSender)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail client: %w", err)
	}
	a.gmailClient = client
	return client, nil
}

func (a *AppContext) authenticate() error {
	if a.googleToken != nil {
		return nil
	}

	a.Logger.Info("Loading OAuth client configuration")
	oauthCfg, err := config.LoadOAuthClientWithEnv(a.Env)
	if err != nil {
		return fmt.Errorf("failed to load OAuth client config: %w", err)
	}

	oauthConfig, err := utils.GetOAuthConfig(oauthCfg)
	if err != nil {
		return fmt.Errorf("failed to get oauth config: %w", err)
	}

	store, err := utils.DefaultTokenStore()
	if err != nil {
		return fmt.Errorf("failed to open token store: %w", err)
	}

	token, err := store.GetTokenWithFlow(a.Ctx, oauthConfig, a.Env, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to get oauth token: %w", err)
	}

	a.oauthCfg = oauthCfg
	a.googleToken = token
	a.Logger.Debug("Google OAuth token ready")
	return nil
}
