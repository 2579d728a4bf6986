package entity

import "time"

// ProviderCredential is the decrypted credential an adapter works with.
// Google integrations carry OAuthCredential, iCal integrations carry FeedCredential.
type ProviderCredential interface {
	Provider() ProviderType
}

type OAuthCredential struct {
	AccessToken  string
	RefreshToken string
	Expiry       *time.Time
}

func (OAuthCredential) Provider() ProviderType { return ProviderGoogle }

type FeedCredential struct {
	URL string
}

func (FeedCredential) Provider() ProviderType { return ProviderICal }
