package llm

import "google.golang.org/genai"

// systemPrompt steers the model toward the template package contract.
// The validator remains the enforcement point; this only raises the hit
// rate of the first attempt.
const systemPrompt = `You are a Pagesmith template generator. Generate JSON template packages for e-commerce pages.

CRITICAL ENDPOINT FORMAT RULES:
All endpoints in dataSources and actions MUST follow one of these exact formats:

1. API Format: verb.resource
   - verb: get, post, put, patch, or delete (lowercase)
   - resource: lowercase with underscores
   - Examples: get.products, get.testimonials, post.contact, post.newsletter

2. Module Format: Module.method
   - Module: PascalCase (Shop, Blog, User, Auth, Newsletter, Contact)
   - method: lowercase with underscores
   - Examples: Shop.post_carts, Shop.get_wishlist, Newsletter.subscribe, Auth.login

NEVER use URL paths like /api/products or /api/v1/posts. ALWAYS use dot notation.

Common DataSource endpoints: get.products, get.categories, get.posts, get.testimonials, get.reviews, get.faqs, get.user, get.orders, Shop.get_cart, Blog.get_posts
Common Action endpoints: post.contact, post.newsletter, Shop.post_carts, Shop.post_wishlist, Shop.post_checkout, Auth.login, Auth.register, Contact.submit

Return a JSON object with this structure:
{
  "metadata": {"name": "Template Name", "description": "Brief description", "pageType": "landing", "route": "/page"},
  "theme": {"primaryColor": "#3B82F6", "darkMode": false},
  "dataSources": [{"id": "source_id", "endpoint": "get.products", "params": {"limit": 12}}],
  "actions": [{"id": "action_id", "endpoint": "Shop.post_carts", "method": "POST"}],
  "sections": [{"type": "hero", "title": "Title", "buttons": [{"label": "Click", "variant": "primary"}]}]
}

RULES:
1. Always include at least one section
2. Use only valid endpoint formats (verb.resource or Module.method)
3. Ensure all actionRef and dataSource references match declared IDs
4. Use only safe content - no script tags, event handlers, or javascript: URLs
5. Return ONLY valid JSON, no markdown`

// responseSchema constrains Gemini structured output to the template
// package shape. Claude has no equivalent; it relies on the prompt.
var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"metadata": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"name":        {Type: genai.TypeString},
				"description": {Type: genai.TypeString},
				"pageType":    {Type: genai.TypeString},
				"route":       {Type: genai.TypeString},
			},
		},
		"theme": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"primaryColor": {Type: genai.TypeString},
				"darkMode":     {Type: genai.TypeBoolean},
			},
		},
		"dataSources": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"id":       {Type: genai.TypeString},
					"endpoint": {Type: genai.TypeString},
					"keyName":  {Type: genai.TypeString},
				},
				Required: []string{"id", "endpoint"},
			},
		},
		"actions": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"id":       {Type: genai.TypeString},
					"endpoint": {Type: genai.TypeString},
					"method":   {Type: genai.TypeString},
				},
				Required: []string{"id", "endpoint"},
			},
		},
		"sections": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"type":       {Type: genai.TypeString},
					"id":         {Type: genai.TypeString},
					"title":      {Type: genai.TypeString},
					"subtitle":   {Type: genai.TypeString},
					"content":    {Type: genai.TypeString},
					"className":  {Type: genai.TypeString},
					"dataSource": {Type: genai.TypeString},
					"actionRef":  {Type: genai.TypeString},
					"columns":    {Type: genai.TypeInteger},
					"buttons": {
						Type: genai.TypeArray,
						Items: &genai.Schema{
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"label":     {Type: genai.TypeString},
								"variant":   {Type: genai.TypeString},
								"href":      {Type: genai.TypeString},
								"actionRef": {Type: genai.TypeString},
							},
						},
					},
					"items": {
						Type: genai.TypeArray,
						Items: &genai.Schema{
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"title":       {Type: genai.TypeString},
								"subtitle":    {Type: genai.TypeString},
								"content":     {Type: genai.TypeString},
								"description": {Type: genai.TypeString},
								"icon":        {Type: genai.TypeString},
								"price":       {Type: genai.TypeString},
							},
						},
					},
					"fields": {
						Type: genai.TypeArray,
						Items: &genai.Schema{
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"name":        {Type: genai.TypeString},
								"label":       {Type: genai.TypeString},
								"type":        {Type: genai.TypeString},
								"placeholder": {Type: genai.TypeString},
								"required":    {Type: genai.TypeBoolean},
							},
						},
					},
				},
				Required: []string{"type"},
			},
		},
	},
	Required: []string{"metadata", "sections"},
}
