package portal

import "time"

// Target catalog for the ConLicitação SPA. Queries that need text matching
// are XPath (the session resolves "//"-prefixed queries via DOM search);
// structural ones stay CSS. Strategies are ordered by observed reliability.

var loginEmail = Target{
	Name:    "login email",
	Timeout: 5 * time.Second,
	Strategies: []Strategy{
		{Name: "email input", Query: `input[type="email"]`},
	},
}

var loginPassword = Target{
	Name:    "login password",
	Timeout: 5 * time.Second,
	Strategies: []Strategy{
		{Name: "password input", Query: `input[type="password"]`},
	},
}

var loginSubmit = Target{
	Name:    "login submit",
	Timeout: 5 * time.Second,
	Strategies: []Strategy{
		{Name: "acessar button", Query: `//button[normalize-space(.)="Acessar"]`},
		{Name: "acessar role", Query: `//*[@role="button" and normalize-space(.)="Acessar"]`},
	},
}

// loggedInMarker matches any post-login dashboard landmark.
var loggedInMarker = Target{
	Name:    "logged-in marker",
	Timeout: 2 * time.Second,
	Strategies: []Strategy{
		{Name: "dashboard text", Query: `//*[normalize-space(text())="Dashboard"]`},
		{Name: "ferramentas text", Query: `//*[normalize-space(text())="Ferramentas"]`},
		{Name: "boletins text", Query: `//*[normalize-space(text())="Boletins de Licitações"]`},
		{Name: "boas-vindas text", Query: `//*[normalize-space(text())="Boas-vindas"]`},
		{Name: "encontrar text", Query: `//*[normalize-space(text())="Encontrar Licitações"]`},
		{Name: "dashboard link", Query: `//a[contains(.,"Dashboard")]`},
		{Name: "ferramentas link", Query: `//a[contains(.,"Ferramentas")]`},
	},
}

// overlayClosers are tried one by one; every visible control is clicked, not
// just the first, because the portal stacks welcome modal + promo overlays.
var overlayClosers = Target{
	Name:    "overlay close",
	Timeout: time.Second,
	Strategies: []Strategy{
		{Name: "usar a plataforma", Query: `//*[normalize-space(text())="Usar a plataforma"]`},
		{Name: "usar a plataforma button", Query: `//button[contains(.,"Usar a plataforma")]`},
		{Name: "usar a plataforma span", Query: `//span[contains(.,"Usar a plataforma")]`},
		{Name: "bootstrap close", Query: `button.close`},
		{Name: "mui dialog close", Query: `.MuiDialog-root [class*="close"]`},
		{Name: "modal header close", Query: `.modal-header .close`},
		{Name: "aria close", Query: `button[aria-label="close"]`},
		{Name: "close class", Query: `[class*="CloseButton"]`},
		{Name: "fechar button", Query: `//button[contains(.,"Fechar")]`},
		{Name: "fechar span", Query: `//span[contains(.,"Fechar")]`},
		{Name: "modal content close", Query: `.modal-content .close`},
		{Name: "entendi button", Query: `//button[contains(.,"Entendi")]`},
		{Name: "presentation fechar", Query: `//div[@role="presentation"]//button[contains(.,"Fechar")]`},
		{Name: "mui close icon", Query: `button svg[data-testid="CloseIcon"]`},
	},
}

// residualDialogQuery detects dialogs that survived the closer pass.
const residualDialogQuery = `[role="dialog"], [aria-modal="true"], .modal.show, .MuiDialog-root`

var genericClose = Target{
	Name:    "generic dialog close",
	Timeout: time.Second,
	Strategies: []Strategy{
		{Name: "x button", Query: `//button[normalize-space(text())="x"]`},
		{Name: "fechar aria", Query: `[aria-label*="fechar"]`},
		{Name: "close class", Query: `[class*="close"]`},
	},
}

// bulletinListEntry is the "Visualizar" control on the dashboard, preferring
// the one inside the bulletins card over a page-wide text match.
var bulletinListEntry = Target{
	Name:    "bulletin list entry",
	Timeout: 5 * time.Second,
	Strategies: []Strategy{
		{Name: "boletins card visualizar", Query: `//div[contains(@class,"MuiPaper-root") or contains(@class,"card")][contains(.,"Boletins de Licitações")]//*[normalize-space(text())="Visualizar"]`},
		{Name: "any visualizar", Query: `//*[normalize-space(text())="Visualizar"]`},
	},
}

// bulletinLinks lists the calendar entries; resolved by presence, not
// visibility, because the calendar renders off-screen rows.
var bulletinLinks = Target{
	Name:    "bulletin links",
	Timeout: 2 * time.Second,
	Strategies: []Strategy{
		{Name: "role button", Query: `//div[@role="button"][contains(.,"Boletim")]`},
		{Name: "span", Query: `//span[contains(.,"Boletim")]`},
		{Name: "anchor", Query: `//a[contains(.,"Boletim")]`},
		{Name: "div", Query: `//div[contains(.,"Boletim")]`},
		{Name: "boletim-link class", Query: `.boletim-link`},
		{Name: "exact text", Query: `//*[normalize-space(text())="Boletim"]`},
	},
}

// totalLabel is the "Total de N licitações" header on a bulletin page.
var totalLabel = Target{
	Name:    "expected total label",
	Timeout: 5 * time.Second,
	Strategies: []Strategy{
		{Name: "total text", Query: `//*[contains(text(),"Total de") and contains(text(),"licita")]`},
	},
}

var exportControl = Target{
	Name:    "xlsx export control",
	Timeout: 15 * time.Second,
	Strategies: []Strategy{
		{Name: "gerar xlsx button", Query: `//button[contains(.,"Gerar .xlsx")]`},
		{Name: "gerar xlsx text", Query: `//*[normalize-space(text())="Gerar .xlsx"]`},
	},
}

var selectBulletinToggle = Target{
	Name:    "select bulletin toggle",
	Timeout: 2 * time.Second,
	Strategies: []Strategy{
		{Name: "selecionar boletim", Query: `//*[normalize-space(text())="Selecionar boletim"]`},
	},
}

// recordCards locates the rendered notice cards on a bulletin page.
var recordCards = Target{
	Name:    "record cards",
	Timeout: 8 * time.Second,
	Strategies: []Strategy{
		{Name: "card body", Query: `.card-body`},
		{Name: "mui card", Query: `.MuiCard-root`},
		{Name: "mui paper", Query: `.MuiPaper-root`},
		{Name: "bidding class", Query: `[class*="bidding"]`},
		{Name: "licitacao class", Query: `[class*="licitacao"]`},
		{Name: "item class", Query: `[class*="item-licitacao"]`},
	},
}

// listingNext advances the bulletin listing during the page walk.
var listingNext = Target{
	Name:    "listing next page",
	Timeout: 1500 * time.Millisecond,
	Strategies: []Strategy{
		{Name: "aria next", Query: `ul.pagination li.page-item:not(.disabled) a[aria-label*="xt"]`},
		{Name: "gt arrow", Query: `//ul[contains(@class,"pagination")]//li[contains(@class,"page-item") and not(contains(@class,"disabled"))]//a[contains(.,">")]`},
		{Name: "raquo arrow", Query: `//ul[contains(@class,"pagination")]//li[contains(@class,"page-item") and not(contains(@class,"disabled"))]//a[contains(.,"»")]`},
		{Name: "proxima accented", Query: `//ul[contains(@class,"pagination")]//li[contains(@class,"page-item") and not(contains(@class,"disabled"))]//a[contains(.,"Próxima")]`},
		{Name: "proxima plain", Query: `//ul[contains(@class,"pagination")]//li[contains(@class,"page-item") and not(contains(@class,"disabled"))]//a[contains(.,"Proxima")]`},
		{Name: "rel next", Query: `ul.pagination li:not(.disabled) > a[rel="next"]`},
		{Name: "aria button", Query: `button[aria-label*="next" i]:not([disabled])`},
		{Name: "nav last button", Query: `nav[aria-label*="pagination" i] button:last-child:not([disabled])`},
	},
}

// searchNext advances pages while searching for one record's card.
var searchNext = Target{
	Name:    "search next page",
	Timeout: time.Second,
	Strategies: []Strategy{
		{Name: "aria next", Query: `ul.pagination li:not(.disabled) a[aria-label*="xt"]`},
		{Name: "gt arrow", Query: `//ul[contains(@class,"pagination")]//li[not(contains(@class,"disabled"))]//a[contains(.,">")]`},
		{Name: "raquo arrow", Query: `//ul[contains(@class,"pagination")]//li[not(contains(@class,"disabled"))]//a[contains(.,"»")]`},
		{Name: "proxima accented", Query: `//ul[contains(@class,"pagination")]//li[not(contains(@class,"disabled"))]//a[contains(.,"Próxima")]`},
		{Name: "proxima plain", Query: `//ul[contains(@class,"pagination")]//li[not(contains(@class,"disabled"))]//a[contains(.,"Proxima")]`},
		{Name: "aria button", Query: `button[aria-label*="next" i]:not([disabled])`},
		{Name: "aria button accented", Query: `button[aria-label*="próxima" i]:not([disabled])`},
	},
}

// Card-scoped targets. Declared relative so Scoped can re-root them under a
// specific record card's XPath.

var downloadControl = Target{
	Name:    "download control",
	Timeout: 2 * time.Second,
	Strategies: []Strategy{
		{Name: "baixar edital button", Query: `//button[contains(.,"Baixar Edital")]`},
		{Name: "baixar edital link", Query: `//a[contains(.,"Baixar Edital")]`},
		{Name: "baixar edital button lower", Query: `//button[contains(.,"Baixar edital")]`},
		{Name: "baixar edital link lower", Query: `//a[contains(.,"Baixar edital")]`},
		{Name: "download class", Query: `//*[contains(@class,"download")][contains(.,"Edital")]`},
		{Name: "edital href", Query: `//a[contains(translate(@href,"EDITAL","edital"),"edital")]`},
		{Name: "download href", Query: `//a[contains(translate(@href,"DOWNLOAD","download"),"download")]`},
	},
}

var expandControl = Target{
	Name:    "card expand control",
	Timeout: 800 * time.Millisecond,
	Strategies: []Strategy{
		{Name: "ver mais accented", Query: `//*[normalize-space(text())="Ver mais informações da licitação"]`},
		{Name: "ver mais plain", Query: `//*[normalize-space(text())="Ver mais informacoes da licitacao"]`},
		{Name: "ver mais link", Query: `//a[contains(.,"Ver mais")]`},
		{Name: "ver mais button", Query: `//button[contains(.,"Ver mais")]`},
		{Name: "ver mais span", Query: `//span[contains(.,"Ver mais")]`},
		{Name: "expand class", Query: `//*[contains(@class,"expand")]`},
		{Name: "details class", Query: `//*[contains(@class,"details")]`},
		{Name: "toggle class", Query: `//*[contains(@class,"toggle")]`},
		{Name: "detalhes link", Query: `//a[contains(.,"Detalhes")]`},
		{Name: "detalhes button", Query: `//button[contains(.,"Detalhes")]`},
	},
}

var favoriteToggle = Target{
	Name:    "favorite toggle",
	Timeout: 500 * time.Millisecond,
	Strategies: []Strategy{
		{Name: "gerenciar link title", Query: `//a[contains(@title,"Gerenciar Licitações")]`},
		{Name: "gerenciar button title", Query: `//button[contains(@title,"Gerenciar Licitações")]`},
		{Name: "gerenciar aria", Query: `//*[contains(@aria-label,"Gerenciar Licitações")]`},
		{Name: "fa star", Query: `//*[contains(@class,"fa-star")]`},
		{Name: "mui star path", Query: `//*[local-name()="path" and contains(@d,"M12 17.27")]`},
		{Name: "star class", Query: `//*[contains(@class,"star")]`},
	},
}

var noDocumentMarker = Target{
	Name:    "no document marker",
	Timeout: time.Second,
	Strategies: []Strategy{
		{Name: "nenhum edital text", Query: `//*[normalize-space(text())="Nenhum edital disponível"]`},
	},
}

// noticeTextXPath matches the element rendering a record's portal ID.
func noticeTextXPath(portalID string) string {
	return `//*[normalize-space(text())="` + portalID + `"]`
}

// cardRootXPath isolates the nearest card container around a record's portal
// ID. The [1] predicate binds to the reverse ancestor axis, so it picks the
// innermost matching div.
func cardRootXPath(portalID string) string {
	return noticeTextXPath(portalID) +
		`/ancestor::div[contains(@class,"MuiPaper-root")` +
		` or contains(@class,"card")` +
		` or contains(@class,"bidding")` +
		` or contains(@class,"licitacao")][1]`
}
