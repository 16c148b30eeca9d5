package postgres_test

import (
	"context"
	"time"

	"github.com/meridianpay/gateway/internal/domain"
)

func (s *PostgresTestSuite) seedMerchant(id, keyHash string, active bool) *domain.Merchant {
	m := &domain.Merchant{
		MerchantID:      id,
		Name:            "Corner Bakery",
		APIKeyHash:      keyHash,
		WebhookURL:      "https://merchant.example/hooks",
		WebhookSecret:   "whsec_itest",
		RateLimitPerMin: 120,
		Active:          active,
		CreatedAt:       time.Now().UTC(),
	}
	s.td.SeedMerchant(s.T(), m)
	return m
}

func (s *PostgresTestSuite) Test_FindMerchantByID() {
	s.seedMerchant("mch_1", "hash-1", true)

	found, err := s.merchants.FindByID(context.Background(), "mch_1")
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal("mch_1", found.MerchantID)
	s.Equal("Corner Bakery", found.Name)
	s.Equal("https://merchant.example/hooks", found.WebhookURL)
	s.Equal("whsec_itest", found.WebhookSecret)
	s.Equal(120, found.RateLimitPerMin)
	s.True(found.Active)
}

func (s *PostgresTestSuite) Test_FindMerchantByID_Missing() {
	found, err := s.merchants.FindByID(context.Background(), "mch_nobody")
	s.Require().NoError(err)
	s.Nil(found)
}

func (s *PostgresTestSuite) Test_FindByAPIKeyHash_ResolvesActiveMerchant() {
	s.seedMerchant("mch_1", "hash-1", true)

	found, err := s.merchants.FindByAPIKeyHash(context.Background(), "hash-1")
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal("mch_1", found.MerchantID)
}

func (s *PostgresTestSuite) Test_FindByAPIKeyHash_RevokedLooksUnknown() {
	s.seedMerchant("mch_1", "hash-1", false)

	found, err := s.merchants.FindByAPIKeyHash(context.Background(), "hash-1")
	s.Require().NoError(err)
	s.Nil(found)
}
