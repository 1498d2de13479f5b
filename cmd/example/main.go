package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"

	review "github.com/wileschulpusi/Review"
	"github.com/wileschulpusi/Review/pkg/oracle"
	"github.com/wileschulpusi/Review/pkg/paillier"
)

func main() {
	fmt.Println("Starting review ledger example")
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "review_example_*")
	if err != nil {
		log.Fatalf("Failed to create data directory: %s", err)
	}
	defer os.RemoveAll(dir)

	// The oracle holds the only decryption key; the ledger gets the public
	// halves only.
	o, err := oracle.Generate(rand.Reader, 1024)
	if err != nil {
		log.Fatalf("Failed to generate oracle keys: %s", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	ledger, err := review.New(review.Config{
		Paths:           []string{dir},
		Logger:          logger,
		PublicKey:       o.PublicKey(),
		OracleVerifyKey: o.VerifyKey(),
	})
	if err != nil {
		log.Fatalf("Failed to create ledger: %s", err)
	}
	if err := ledger.Start(ctx); err != nil {
		log.Fatalf("Failed to start ledger: %s", err)
	}
	defer ledger.Close(ctx)

	// Submit a paper with an encrypted document.
	paper, err := ledger.SubmitPaper(ctx, review.SubmitPaperInput{
		Title:             "Example Paper",
		Submitter:         "alice",
		ContentCiphertext: encrypt(o, 1),
	})
	if err != nil {
		log.Fatalf("Error submitting paper: %s", err)
	}
	fmt.Printf("Submitted paper %s\n", paper.ID)

	// Three reviewers attach encrypted scores.
	for _, score := range []uint64{7, 8, 9} {
		r, err := ledger.SubmitReview(ctx, review.SubmitReviewInput{
			PaperID:         paper.ID,
			Reviewer:        "reviewer",
			ScoreCiphertext: encrypt(o, score),
		})
		if err != nil {
			log.Fatalf("Error submitting review: %s", err)
		}
		fmt.Printf("Submitted review %d\n", r.Index)
	}

	// Fold the scores homomorphically; the ledger never sees a plaintext.
	_, agg, err := ledger.AggregateScores(ctx, paper.ID)
	if err != nil {
		log.Fatalf("Error aggregating scores: %s", err)
	}
	fmt.Printf("Aggregated scores into handle %s\n", agg.ID)

	if _, err := ledger.Publish(ctx, paper.ID); err != nil {
		log.Fatalf("Error publishing paper: %s", err)
	}
	fmt.Println("Published paper")

	// Disclose the aggregate through the two-phase oracle round-trip.
	client := oracle.NewClient(o, logger)
	res, err := client.Disclose(ctx, ledger, agg.ID)
	if err != nil {
		log.Fatalf("Error disclosing aggregate: %s", err)
	}
	fmt.Printf("Verified aggregate score: %d\n", res.ClearValue)
}

func encrypt(o *oracle.Oracle, value uint64) string {
	c, err := o.PublicKey().Encrypt(rand.Reader, value)
	if err != nil {
		log.Fatalf("Error encrypting value: %s", err)
	}
	return paillier.CiphertextHex(c)
}
