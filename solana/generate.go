package solana

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"

	"github.com/AlexZinkM/wallet-core/internal/keys"
	"github.com/AlexZinkM/wallet-core/internal/model"
)

// GenerateWallet creates a wallet and selects it. With req.Words set to 12 or
// 24 the wallet is derived from a new recovery phrase, which is returned once
// and never stored.
func (s *Service) GenerateWallet(ctx context.Context, req model.GenerateRequest) (*model.GenerateResponse, error) {
	resp := &model.GenerateResponse{Success: true, Message: "Wallet generated successfully"}

	if req.Words == 0 {
		rec, err := s.registry.Create(ctx, req.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to create wallet: %w", err)
		}
		resp.Wallet = rec.View(true)
		s.walletSetChanged()
		return resp, nil
	}

	phrase, err := keys.NewMnemonic(req.Words)
	if err != nil {
		return nil, err
	}
	rec, err := s.registry.CreateFromPhrase(ctx, phrase, req.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	resp.Wallet = rec.View(true)
	resp.Phrase = phrase
	resp.Message = "Wallet generated successfully. Write down the recovery phrase, it is shown only once"
	s.walletSetChanged()
	return resp, nil
}

// ImportSecret imports a raw 64-byte secret key.
func (s *Service) ImportSecret(ctx context.Context, req model.ImportSecretRequest) (*model.ImportResponse, error) {
	rec, err := s.registry.ImportFromSecret(ctx, req.Secret, req.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to import wallet: %w", err)
	}
	s.walletSetChanged()
	return &model.ImportResponse{Imported: []model.WalletView{rec.View(true)}}, nil
}

// ImportPhrase imports the first req.Count addresses of a recovery phrase.
func (s *Service) ImportPhrase(ctx context.Context, req model.ImportPhraseRequest) (*model.ImportResponse, error) {
	added, err := s.registry.ImportFromPhrase(ctx, req.Phrase, req.Name, req.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to import phrase: %w", err)
	}
	resp := &model.ImportResponse{Imported: make([]model.WalletView, 0, len(added))}
	for i, rec := range added {
		resp.Imported = append(resp.Imported, rec.View(i == 0))
	}
	s.walletSetChanged()
	return resp, nil
}

// ListWallets returns every wallet and the selection.
func (s *Service) ListWallets() *model.WalletListResponse {
	snap := s.registry.Snapshot()
	return &model.WalletListResponse{
		Connected:  snap.Connected(),
		SelectedID: snap.SelectedID,
		Wallets:    snap.Views(),
	}
}

// SelectWallet makes id the current wallet.
func (s *Service) SelectWallet(ctx context.Context, id string) (*model.WalletListResponse, error) {
	if err := s.registry.Select(ctx, id); err != nil {
		return nil, err
	}
	return s.ListWallets(), nil
}

// RenameWallet changes a wallet's display name.
func (s *Service) RenameWallet(ctx context.Context, req model.RenameRequest) (*model.WalletView, error) {
	rec, err := s.registry.Rename(ctx, req.ID, req.Name)
	if err != nil {
		return nil, err
	}
	v := rec.View(rec.ID == s.registry.Snapshot().SelectedID)
	return &v, nil
}

// DeleteWallet removes a wallet.
func (s *Service) DeleteWallet(ctx context.Context, id string) (*model.WalletListResponse, error) {
	if err := s.registry.Delete(ctx, id); err != nil {
		return nil, err
	}
	s.walletSetChanged()
	return s.ListWallets(), nil
}

// ReceiveQR returns the address of a wallet and its QR code.
func (s *Service) ReceiveQR(id string) (*model.ReceiveResponse, error) {
	rec, err := s.wallet(id)
	if err != nil {
		return nil, err
	}
	qr, err := generateQRCode(rec.Address())
	if err != nil {
		return nil, err
	}
	return &model.ReceiveResponse{Address: rec.Address(), QR: qr}, nil
}

// generateQRCode generates QR code of address in base64
func generateQRCode(address string) (string, error) {
	qr, err := qrcode.New(address, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate PNG: %w", err)
	}

	return base64.StdEncoding.EncodeToString(png), nil
}
