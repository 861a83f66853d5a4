package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/intent"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Quick-reply sets reused across steps.
var (
	paymentChoices  = []string{"Wave", "Orange Money", "Carte bancaire", "Espèces à la livraison"}
	summaryChoices  = []string{"Confirmer", "Modifier"}
	recoveryChoices = []string{"Réessayer", "Choisir un autre moyen de paiement"}
)

// phonePattern accepts Senegalese mobile numbers, with or without the
// +221 prefix, spaces and dashes tolerated.
var phonePattern = regexp.MustCompile(`^(\+?221)?7[05678]\d{7}$`)

const maxQuantity = 100

func normalizePhone(s string) string {
	return strings.NewReplacer(" ", "", "-", "", ".", "").Replace(strings.TrimSpace(s))
}

func isAffirmative(input string) bool {
	switch intent.Normalize(strings.TrimSpace(input)) {
	case "oui", "ok", "d'accord", "confirmer", "je confirme", "c'est bon", "valider":
		return true
	}
	return false
}

// ensureDraft attaches an order draft with one line of the session's
// product. Quantity defaults to 1 until collect_quantity refines it.
func (c *Conversation) ensureDraft(ctx context.Context, sess *domain.ConversationSession) error {
	if sess.Order != nil {
		return nil
	}

	product, err := c.products.GetProduct(ctx, sess.ProductID)
	if err != nil {
		return err
	}

	order := &domain.Order{
		StoreID:   sess.StoreID,
		SessionID: sess.ID,
		Status:    domain.OrderStatusDraft,
		Currency:  c.currency,
		Items: []domain.OrderItem{{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  1,
			UnitPrice: product.Price,
		}},
	}
	order.Recompute()
	sess.Order = order
	return nil
}

func (c *Conversation) handleInitialEngagement(ctx context.Context, sess *domain.ConversationSession, input string, analysis *domain.Analysis) *domain.Reply {
	// Express checkout: an explicit purchase phrase (or enough
	// accumulated intent) skips product Q&A entirely.
	if analysis.DirectPurchase || analysis.ReadyToBuy {
		if err := c.ensureDraft(ctx, sess); err != nil {
			c.logger.Error("express checkout draft failed",
				zap.String("session_id", sess.ID), zap.Error(err))
			return &domain.Reply{
				Text:    "Petit souci technique de notre côté. Pouvez-vous renvoyer votre message?",
				Choices: []string{"Réessayer"},
			}
		}
		sess.CurrentStep = domain.StepCollectName
		return &domain.Reply{
			Text: fmt.Sprintf("Parfait! %s à %.0f %s. Pour préparer votre commande, quel est votre nom complet?",
				sess.Order.Items[0].Name, sess.Order.Items[0].UnitPrice, c.currency),
		}
	}

	// Fetch the product and generate the greeting concurrently; the
	// greeting falls back to canned copy when generation is slow.
	var product *domain.Product
	greeting := "Bonjour et bienvenue! Je suis là pour répondre à vos questions sur ce produit."

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := c.products.GetProduct(gctx, sess.ProductID)
		if err == nil {
			product = p
		}
		return nil
	})
	g.Go(func() error {
		greeting = c.enrich(gctx,
			"Tu es un vendeur sympathique d'une boutique de cartes à jouer au Sénégal. Accueille le client en une phrase.",
			input, greeting)
		return nil
	})
	g.Wait()

	if product != nil {
		greeting = fmt.Sprintf("%s %s est à %.0f %s.", greeting, product.Name, product.Price, c.currency)
	}

	sess.CurrentStep = domain.StepProductEngagement
	return &domain.Reply{
		Text:    greeting,
		Choices: []string{"Je veux acheter", "Plus d'infos", "Prix de livraison"},
	}
}

// concernReplies is the canned answer per detected concern category.
var concernReplies = map[string]string{
	"price":    "Nos prix sont parmi les plus compétitifs du marché, et la livraison est gratuite à Dakar.",
	"quality":  "Tous nos produits sont authentiques et vérifiés avant expédition.",
	"delivery": "Nous livrons à Dakar en 24h et dans les régions sous 2 à 3 jours.",
	"trust":    "Vous payez par Wave, Orange Money, carte ou en espèces à la livraison, et le remboursement est garanti.",
}

func (c *Conversation) handleProductEngagement(ctx context.Context, sess *domain.ConversationSession, input string, analysis *domain.Analysis) *domain.Reply {
	if analysis.DirectPurchase || analysis.ReadyToBuy {
		if err := c.ensureDraft(ctx, sess); err != nil {
			c.logger.Error("draft creation failed",
				zap.String("session_id", sess.ID), zap.Error(err))
			return &domain.Reply{
				Text:    "Petit souci technique de notre côté. Pouvez-vous renvoyer votre message?",
				Choices: []string{"Réessayer"},
			}
		}
		sess.CurrentStep = domain.StepCollectQuantity
		return &domain.Reply{
			Text:    "Très bon choix! Combien d'exemplaires souhaitez-vous?",
			Choices: []string{"1", "2", "3"},
		}
	}

	fallback := "Avec plaisir! Que souhaitez-vous savoir d'autre sur ce produit?"
	if len(analysis.Concerns) > 0 {
		parts := make([]string, 0, len(analysis.Concerns))
		for _, concern := range analysis.Concerns {
			if text, ok := concernReplies[concern]; ok {
				parts = append(parts, text)
			}
		}
		if len(parts) > 0 {
			fallback = strings.Join(parts, " ")
		}
	}

	text := c.enrich(ctx,
		"Tu es un vendeur d'une boutique de cartes à jouer au Sénégal. Réponds brièvement à la question du client.",
		input, fallback)
	return &domain.Reply{
		Text:    text,
		Choices: []string{"Je veux acheter", "Prix de livraison"},
	}
}

func (c *Conversation) handleCollectQuantity(ctx context.Context, sess *domain.ConversationSession, input string) *domain.Reply {
	qty, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || qty < 1 || qty > maxQuantity {
		return &domain.Reply{
			Text:    "Je n'ai pas compris la quantité. Indiquez un nombre entre 1 et 100.",
			Choices: []string{"1", "2", "3"},
		}
	}

	if err := c.ensureDraft(ctx, sess); err != nil {
		c.logger.Error("draft creation failed",
			zap.String("session_id", sess.ID), zap.Error(err))
		return &domain.Reply{
			Text:    "Petit souci technique de notre côté. Pouvez-vous renvoyer la quantité?",
			Choices: []string{"Réessayer"},
		}
	}

	sess.Order.Items[0].Quantity = qty
	sess.Order.Recompute()

	sess.CurrentStep = domain.StepCollectName
	return &domain.Reply{
		Text: fmt.Sprintf("C'est noté, %d exemplaire(s) pour %.0f %s. Quel est votre nom complet?",
			qty, sess.Order.Subtotal, c.currency),
	}
}

func (c *Conversation) handleCollectName(ctx context.Context, sess *domain.ConversationSession, input string) *domain.Reply {
	name := strings.TrimSpace(input)
	if len(name) < 2 {
		return &domain.Reply{Text: "Pouvez-vous m'indiquer votre nom complet?"}
	}

	if err := c.ensureDraft(ctx, sess); err != nil {
		c.logger.Error("draft creation failed",
			zap.String("session_id", sess.ID), zap.Error(err))
		return &domain.Reply{
			Text:    "Petit souci technique de notre côté. Pouvez-vous renvoyer votre nom?",
			Choices: []string{"Réessayer"},
		}
	}

	first, last, _ := strings.Cut(name, " ")
	sess.Order.Customer.FirstName = first
	sess.Order.Customer.LastName = strings.TrimSpace(last)

	sess.CurrentStep = domain.StepCollectPhone
	return &domain.Reply{
		Text: fmt.Sprintf("Merci %s! Quel est votre numéro de téléphone?", first),
	}
}

func (c *Conversation) handleCollectPhone(sess *domain.ConversationSession, input string) *domain.Reply {
	phone := normalizePhone(input)
	if !phonePattern.MatchString(phone) {
		return &domain.Reply{
			Text: "Ce numéro ne semble pas valide. Indiquez un numéro sénégalais, par exemple 77 123 45 67.",
		}
	}

	sess.Order.Customer.Phone = phone
	sess.CurrentStep = domain.StepCollectCity
	return &domain.Reply{Text: "Dans quelle ville souhaitez-vous être livré(e)?"}
}

func (c *Conversation) handleCollectCity(ctx context.Context, sess *domain.ConversationSession, input string) *domain.Reply {
	verdict := c.zones.ValidateCity(ctx, input, sess.Order.Subtotal)
	if !verdict.IsDeliverable {
		return &domain.Reply{
			Text:    verdict.Message,
			Choices: []string{"Essayer une autre ville", "Être averti quand disponible"},
		}
	}

	sess.Order.Customer.City = strings.TrimSpace(input)
	sess.Order.DeliveryCost = verdict.DeliveryCost
	sess.Order.ZoneName = verdict.ZoneName
	sess.Order.Recompute()

	sess.CurrentStep = domain.StepCollectAddress
	return &domain.Reply{
		Text: verdict.Message + " Quelle est votre adresse exacte (quartier, rue, repère)?",
	}
}

func (c *Conversation) handleCollectAddress(sess *domain.ConversationSession, input string) *domain.Reply {
	address := strings.TrimSpace(input)
	if len(address) < 5 {
		return &domain.Reply{Text: "Pouvez-vous préciser votre adresse (quartier, rue, repère)?"}
	}

	sess.Order.Customer.Address = address
	sess.CurrentStep = domain.StepOrderSummary

	o := sess.Order
	return &domain.Reply{
		Text: fmt.Sprintf(
			"Récapitulatif: %d x %s = %.0f %s, livraison %.0f %s, total %.0f %s. Livraison à %s pour %s %s. On confirme?",
			o.Items[0].Quantity, o.Items[0].Name, o.Subtotal, o.Currency,
			o.DeliveryCost, o.Currency, o.Total, o.Currency,
			o.Customer.City, o.Customer.FirstName, o.Customer.LastName),
		Choices: summaryChoices,
		Order:   o,
	}
}

func (c *Conversation) handleOrderSummary(ctx context.Context, sess *domain.ConversationSession, input string) *domain.Reply {
	if !isAffirmative(input) {
		sess.CurrentStep = domain.StepCollectQuantity
		return &domain.Reply{
			Text:    "Pas de souci, reprenons. Combien d'exemplaires souhaitez-vous?",
			Choices: []string{"1", "2", "3"},
		}
	}

	// Idempotence: a replayed confirmation must not create a second
	// order row.
	if sess.Order.ID == "" {
		if err := sess.Order.Validate(); err != nil {
			c.logger.Error("order failed validation before persist",
				zap.String("session_id", sess.ID), zap.Error(err))
			sess.CurrentStep = domain.StepErrorRecovery
			return &domain.Reply{
				Text:    "Une erreur est survenue sur votre commande. Voulez-vous reprendre?",
				Choices: []string{"Reprendre"},
			}
		}

		sess.Order.CreatedAt = time.Now()
		created, err := c.orders.CreateOrder(ctx, sess.Order)
		if err != nil {
			c.logger.Error("order persist failed",
				zap.String("session_id", sess.ID), zap.Error(err))
			return &domain.Reply{
				Text:    "Impossible d'enregistrer la commande pour le moment. Voulez-vous réessayer?",
				Choices: []string{"Confirmer"},
			}
		}
		sess.Order = created
	}

	sess.CurrentStep = domain.StepPaymentMethod
	return &domain.Reply{
		Text:    "Commande enregistrée! Comment souhaitez-vous payer?",
		Choices: paymentChoices,
		Order:   sess.Order,
	}
}

// parsePaymentChoice maps free-text or quick-reply input to a provider.
func parsePaymentChoice(input string) (domain.PaymentProvider, bool) {
	if p, ok := domain.ParseProvider(strings.TrimSpace(input)); ok {
		return p, true
	}
	normalized := intent.Normalize(input)
	switch {
	case strings.Contains(normalized, "wave"):
		return domain.ProviderWave, true
	case strings.Contains(normalized, "orange"):
		return domain.ProviderOrangeMoney, true
	case strings.Contains(normalized, "carte"), strings.Contains(normalized, "stripe"), strings.Contains(normalized, "card"):
		return domain.ProviderStripe, true
	case strings.Contains(normalized, "espece"), strings.Contains(normalized, "cash"), strings.Contains(normalized, "livraison"):
		return domain.ProviderCash, true
	}
	return "", false
}

func (c *Conversation) handlePaymentMethod(ctx context.Context, sess *domain.ConversationSession, input string) *domain.Reply {
	provider, ok := parsePaymentChoice(input)
	if !ok {
		return &domain.Reply{
			Text:    "Choisissez un moyen de paiement parmi les options proposées.",
			Choices: paymentChoices,
		}
	}

	result := c.payments.Initiate(ctx, &domain.PaymentRequest{
		Provider:  provider,
		Amount:    sess.Order.Total,
		Currency:  sess.Order.Currency,
		OrderID:   sess.Order.ID,
		SessionID: sess.ID,
		Customer:  sess.Order.Customer,
		Metadata:  map[string]string{"store_id": sess.StoreID},
	})
	if !result.Success {
		// Stay on payment_method so the user can retry or switch.
		return &domain.Reply{
			Text:    result.Error,
			Choices: recoveryChoices,
		}
	}

	if provider == domain.ProviderCash {
		sess.CurrentStep = domain.StepOrderConfirmed
		return &domain.Reply{
			Text:         "Votre commande est confirmée! " + result.Instructions,
			Instructions: result.Instructions,
			Order:        sess.Order,
		}
	}

	sess.CurrentStep = domain.StepPaymentProcessing
	reply := &domain.Reply{
		Text:        "Parfait! Suivez le lien pour finaliser votre paiement. Je vous confirme la commande dès réception.",
		CheckoutURL: result.CheckoutURL,
		QRCode:      result.QRCode,
		Order:       sess.Order,
	}
	if result.QRCode != "" {
		reply.Text = "Parfait! Scannez le QR code pour finaliser votre paiement. Je vous confirme la commande dès réception."
	}
	return reply
}

func (c *Conversation) handlePaymentProcessing(sess *domain.ConversationSession, input string) *domain.Reply {
	if strings.Contains(intent.Normalize(input), "changer") {
		sess.CurrentStep = domain.StepPaymentMethod
		return &domain.Reply{
			Text:    "Bien sûr, choisissez un autre moyen de paiement.",
			Choices: paymentChoices,
		}
	}
	return &domain.Reply{
		Text:    "Votre paiement est en cours de traitement. Je vous préviens dès qu'il est confirmé.",
		Choices: []string{"Changer de moyen de paiement"},
	}
}

func (c *Conversation) handleErrorRecovery(sess *domain.ConversationSession, input string) *domain.Reply {
	if isAffirmative(input) || strings.Contains(intent.Normalize(input), "reprendre") {
		if sess.Order != nil && sess.Order.ID != "" {
			sess.CurrentStep = domain.StepPaymentMethod
			return &domain.Reply{
				Text:    "Reprenons. Comment souhaitez-vous payer?",
				Choices: paymentChoices,
			}
		}
		sess.CurrentStep = domain.StepInitialEngagement
		return &domain.Reply{Text: "Reprenons depuis le début. Que puis-je faire pour vous?"}
	}
	return &domain.Reply{
		Text:    "Voulez-vous reprendre votre commande?",
		Choices: []string{"Reprendre", "Abandonner"},
	}
}
