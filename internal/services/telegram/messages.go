// -----------------------------------------------------------------------
// Canned bot replies for command handling
// -----------------------------------------------------------------------

package telegram

// WelcomeMessage is sent in reply to /start
const WelcomeMessage = `👋 *Welcome to the Pagesmith Template Generator!*

I can generate website templates from your descriptions.

*Commands:*
• ` + "`/prompt <description>`" + ` - Generate a website
• ` + "`/help`" + ` - Show help and examples

*Quick Example:*
` + "`/prompt Create a landing page for a pizza restaurant with hero section, menu, and contact form`" + `

Just type ` + "`/prompt`" + ` followed by what you want to create!`

// HelpMessage is sent in reply to /help
const HelpMessage = `🤖 *Pagesmith Template Generator*

To generate a website template, use:

` + "`/prompt Your description here`" + `

*Examples:*
• ` + "`/prompt Create a landing page for a pizza restaurant`" + `
• ` + "`/prompt Build an online store for shoes`" + `
• ` + "`/prompt Make a blog page about travel`" + `
• ` + "`/prompt Create a contact page with form and map`" + `

*Tips for better results:*
• Be specific about sections you want (hero, features, testimonials, etc.)
• Mention the industry or business type
• Describe the style or mood (modern, minimal, colorful, etc.)

*Commands:*
• ` + "`/start`" + ` - Welcome message
• ` + "`/help`" + ` - Show this help
• ` + "`/prompt <text>`" + ` - Generate template`

// InvalidCommandMessage is sent when the text is not a recognized command
const InvalidCommandMessage = "❌ Please use the `/prompt` command.\n\n" +
	"Example: `/prompt Create a website for a car dealership`\n\n" +
	"Type `/help` for more info."

// EmptyPromptMessage is sent when /prompt carries no description
const EmptyPromptMessage = "❌ Please provide a description after `/prompt`.\n\n" +
	"Example: `/prompt Create a landing page for a pizza restaurant`"

// WorkingMessage acknowledges an accepted prompt
const WorkingMessage = "🔄 Working on it... I'll send you the preview link when it's ready!"

// QueueErrorMessage is sent when a job could not be handed to the queue
const QueueErrorMessage = "❌ Sorry, something went wrong queueing your request. Please try again in a moment."
